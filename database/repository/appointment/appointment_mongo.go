package appointmentRepo

import (
	"context"
	"fmt"
	"time"

	"bookline/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoAppointmentRepo struct {
	coll *mongo.Collection
}

// NewMongoAppointmentRepo constructs a new MongoDB AppointmentRepository.
func NewMongoAppointmentRepo(db *mongo.Database) AppointmentRepository {
	repo := &mongoAppointmentRepo{
		coll: db.Collection("appointments"),
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

// overlapFilter matches non-cancelled appointments for a professional that
// intersect the half-open window [start, end).
func overlapFilter(tenantID, professionalID string, start, end time.Time) bson.M {
	return bson.M{
		"tenant_id":       tenantID,
		"professional_id": professionalID,
		"status":          bson.M{"$ne": models.AppointmentStatusCancelled},
		"start":           bson.M{"$lt": end},
		"end":             bson.M{"$gt": start},
	}
}

func (repo *mongoAppointmentRepo) Create(ctx context.Context, appt *models.Appointment) error {
	client := repo.coll.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return models.NewPersistenceError("could not start mongo session", err)
	}
	defer sess.EndSession(ctx)

	txnFn := func(sc mongo.SessionContext) error {
		count, err := repo.coll.CountDocuments(sc,
			overlapFilter(appt.TenantID, appt.ProfessionalID, appt.Start, appt.End))
		if err != nil {
			return models.NewPersistenceError("overlap check failed", err)
		}
		if count > 0 {
			return models.NewConflictError(
				fmt.Sprintf("professional %s already booked between %s and %s",
					appt.ProfessionalID, appt.Start.Format(time.RFC3339), appt.End.Format(time.RFC3339)))
		}
		if _, err := repo.coll.InsertOne(sc, appt); err != nil {
			return models.NewPersistenceError("insert appointment failed", err)
		}
		return nil
	}

	if err := mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := txnFn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	}); err != nil {
		return err
	}

	return nil
}

func (repo *mongoAppointmentRepo) Cancel(ctx context.Context, tenantID, appointmentID, reason string) error {
	filter := bson.M{
		"id":        appointmentID,
		"tenant_id": tenantID,
		"status":    bson.M{"$ne": models.AppointmentStatusCancelled},
	}
	update := bson.M{
		"$set": bson.M{
			"status":        models.AppointmentStatusCancelled,
			"cancel_reason": reason,
			"updated_at":    time.Now().UTC(),
		},
	}
	res, err := repo.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return models.NewPersistenceError("cancel appointment failed", err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError(fmt.Sprintf("appointment %s not found", appointmentID))
	}
	return nil
}

func (repo *mongoAppointmentRepo) Reschedule(ctx context.Context, tenantID, appointmentID string, newStart time.Time) (*models.Appointment, error) {
	client := repo.coll.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return nil, models.NewPersistenceError("could not start mongo session", err)
	}
	defer sess.EndSession(ctx)

	var updated models.Appointment

	txnFn := func(sc mongo.SessionContext) error {
		var current models.Appointment
		err := repo.coll.FindOne(sc, bson.M{
			"id":        appointmentID,
			"tenant_id": tenantID,
			"status":    bson.M{"$ne": models.AppointmentStatusCancelled},
		}).Decode(&current)
		if err == mongo.ErrNoDocuments {
			return models.NewNotFoundError(fmt.Sprintf("appointment %s not found", appointmentID))
		}
		if err != nil {
			return models.NewPersistenceError("load appointment failed", err)
		}

		duration := current.End.Sub(current.Start)
		newEnd := newStart.Add(duration)

		filter := overlapFilter(tenantID, current.ProfessionalID, newStart, newEnd)
		filter["id"] = bson.M{"$ne": appointmentID}
		count, err := repo.coll.CountDocuments(sc, filter)
		if err != nil {
			return models.NewPersistenceError("overlap check failed", err)
		}
		if count > 0 {
			return models.NewConflictError(
				fmt.Sprintf("professional %s already booked between %s and %s",
					current.ProfessionalID, newStart.Format(time.RFC3339), newEnd.Format(time.RFC3339)))
		}

		now := time.Now().UTC()
		update := bson.M{"$set": bson.M{"start": newStart, "end": newEnd, "updated_at": now}}
		if _, err := repo.coll.UpdateOne(sc, bson.M{"id": appointmentID}, update); err != nil {
			return models.NewPersistenceError("update appointment failed", err)
		}

		updated = current
		updated.Start = newStart
		updated.End = newEnd
		updated.UpdatedAt = now
		return nil
	}

	if err := mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := txnFn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	}); err != nil {
		return nil, err
	}

	return &updated, nil
}

func (repo *mongoAppointmentRepo) GetByID(ctx context.Context, tenantID, appointmentID string) (*models.Appointment, error) {
	var appt models.Appointment
	err := repo.coll.FindOne(ctx, bson.M{"id": appointmentID, "tenant_id": tenantID}).Decode(&appt)
	if err == mongo.ErrNoDocuments {
		return nil, models.NewNotFoundError(fmt.Sprintf("appointment %s not found", appointmentID))
	}
	if err != nil {
		return nil, models.NewPersistenceError("load appointment failed", err)
	}
	return &appt, nil
}

func (repo *mongoAppointmentRepo) FindOverlapping(ctx context.Context, tenantID, professionalID string, from, to time.Time) ([]models.Appointment, error) {
	filter := overlapFilter(tenantID, professionalID, from, to)
	if professionalID == "" {
		delete(filter, "professional_id")
	}
	opts := options.Find().SetSort(bson.D{{Key: "start", Value: 1}})
	cur, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, models.NewPersistenceError("find overlapping appointments failed", err)
	}
	defer cur.Close(ctx)

	var appointments []models.Appointment
	if err := cur.All(ctx, &appointments); err != nil {
		return nil, models.NewPersistenceError("decode appointments failed", err)
	}
	return appointments, nil
}

func (repo *mongoAppointmentRepo) FindUpcomingByCustomer(ctx context.Context, tenantID, customerID string, from time.Time) ([]models.Appointment, error) {
	filter := bson.M{
		"tenant_id":   tenantID,
		"customer_id": customerID,
		"status":      models.AppointmentStatusConfirmed,
		"start":       bson.M{"$gte": from},
	}
	opts := options.Find().SetSort(bson.D{{Key: "start", Value: 1}})
	cur, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, models.NewPersistenceError("find upcoming appointments failed", err)
	}
	defer cur.Close(ctx)

	var appointments []models.Appointment
	if err := cur.All(ctx, &appointments); err != nil {
		return nil, models.NewPersistenceError("decode appointments failed", err)
	}
	return appointments, nil
}
