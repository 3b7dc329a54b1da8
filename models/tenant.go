package models

import "time"

// DayWindow holds the open/close wall-clock pair for one weekday, "HH:MM" format.
type DayWindow struct {
	Start string `bson:"start" json:"start"`
	End   string `bson:"end" json:"end"`
}

// WorkHours maps a weekday key ("monday".."sunday") to its window.
// A missing key means closed that day.
type WorkHours map[string]DayWindow

// Tenant represents a business served by the booking agent.
type Tenant struct {
	ID                 string    `bson:"id" json:"id"`
	Name               string    `bson:"name" json:"name"`
	WhatsAppNumber     string    `bson:"whatsapp_number" json:"whatsapp_number"` // Recipient address webhooks resolve against
	PhoneNumberID      string    `bson:"phone_number_id" json:"phone_number_id"` // Cloud API sender id
	Timezone           string    `bson:"timezone" json:"timezone"`               // IANA name, e.g. "America/Sao_Paulo"
	Tone               string    `bson:"tone" json:"tone"`
	CustomInstructions string    `bson:"custom_instructions" json:"custom_instructions"`
	WorkHours          WorkHours `bson:"work_hours" json:"work_hours"`
	CreatedAt          time.Time `bson:"created_at" json:"created_at"`
}

// Location resolves the tenant's time.Location, falling back to UTC.
func (t Tenant) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Service is a bookable offering with a fixed duration.
type Service struct {
	ID              string  `bson:"id" json:"id"`
	TenantID        string  `bson:"tenant_id" json:"tenant_id"`
	Name            string  `bson:"name" json:"name"`
	DurationMinutes int     `bson:"duration_minutes" json:"duration_minutes"`
	Price           float64 `bson:"price" json:"price"`
	Description     string  `bson:"description,omitempty" json:"description,omitempty"`
	Active          bool    `bson:"active" json:"active"`
}

// Professional is a staff member whose calendar appointments are booked against.
type Professional struct {
	ID        string    `bson:"id" json:"id"`
	TenantID  string    `bson:"tenant_id" json:"tenant_id"`
	Name      string    `bson:"name" json:"name"`
	Role      string    `bson:"role,omitempty" json:"role,omitempty"`
	WorkHours WorkHours `bson:"work_hours,omitempty" json:"work_hours,omitempty"` // Overrides tenant hours when set
	Active    bool      `bson:"active" json:"active"`
}

// Customer is an end client identified by their messaging address.
type Customer struct {
	ID        string    `bson:"id" json:"id"`
	TenantID  string    `bson:"tenant_id" json:"tenant_id"`
	Address   string    `bson:"address" json:"address"` // Phone-like channel address
	Name      string    `bson:"name,omitempty" json:"name,omitempty"`
	Notes     []string  `bson:"notes,omitempty" json:"notes,omitempty"` // Saved preferences
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// KnowledgeSnippet is a short piece of tenant-specific knowledge retrievable
// during context assembly (FAQ answers, policies, directions).
type KnowledgeSnippet struct {
	ID       string `bson:"id" json:"id"`
	TenantID string `bson:"tenant_id" json:"tenant_id"`
	Title    string `bson:"title" json:"title"`
	Content  string `bson:"content" json:"content"`
}
