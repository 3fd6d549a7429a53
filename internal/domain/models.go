package domain

import (
	"time"
)

// SubscriptionStatus is the billing state of an account as a whole.
type SubscriptionStatus string

// Account lifecycle states. "trial" is the implicit state of an account that
// has never completed checkout; the remaining states mirror the payment
// provider's subscription lifecycle.
const (
	StatusTrial    SubscriptionStatus = "trial"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Account is the identity anchor. An account is created lazily on the first
// successful magic-link completion or payment event; until then a chat user
// exists only as trial rows keyed by chat id.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: unique, stored lowercased and trimmed.
//   - StripeCustomerID: the payment provider's customer id, attached once known.
//   - SubscriptionStatus: trial | active | past_due | canceled.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Account struct {
	ID                 string             `json:"id"                  gorm:"type:char(36);primaryKey"`
	Email              string             `json:"email"               gorm:"type:varchar(255);not null;uniqueIndex:ux_accounts_email"`
	StripeCustomerID   *string            `json:"stripe_customer_id"  gorm:"type:varchar(64);index"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" gorm:"type:varchar(16);not null;default:'trial'"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "accounts" }

// AccountCharacter grants one persona to one account. The (account_id,
// character) pair is unique; re-granting an already-held persona is a no-op.
type AccountCharacter struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	AccountID string    `json:"account_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_account_characters"`
	Character Character `json:"character"  gorm:"type:varchar(16);not null;uniqueIndex:ux_account_characters"`
	AddedAt   time.Time `json:"added_at"`

	// Account is the owning account. Grants are cascade-deleted with it.
	Account Account `json:"-" gorm:"foreignKey:AccountID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for AccountCharacter.
func (AccountCharacter) TableName() string { return "account_characters" }

// TelegramLink binds an external chat identity to an account for one persona
// context. At most one link exists per (chat_id, character); creating a new
// one for the same pair replaces the prior row. Lookups by chat id alone
// resolve the account regardless of persona.
type TelegramLink struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    string    `json:"chat_id"    gorm:"type:varchar(64);not null;index;uniqueIndex:ux_telegram_links"`
	AccountID string    `json:"account_id" gorm:"type:char(36);not null;index"`
	Character Character `json:"character"  gorm:"type:varchar(16);not null;uniqueIndex:ux_telegram_links"`
	LinkedAt  time.Time `json:"linked_at"`

	Account Account `json:"-" gorm:"foreignKey:AccountID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TelegramLink.
func (TelegramLink) TableName() string { return "telegram_links" }

// PendingLink is an in-flight magic-link request: a single-use token binding
// an email, a chat id, and a persona intent across the payment redirect.
// At most one pending link exists per (chat_id, character); newer requests
// supersede older ones. Rows are deleted on completion, on verification of an
// expired token, and by the periodic expiry sweep.
type PendingLink struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email     string    `json:"email"      gorm:"type:varchar(255);not null"`
	ChatID    string    `json:"chat_id"    gorm:"type:varchar(64);not null;index:idx_pending_pair"`
	Character Character `json:"character"  gorm:"type:varchar(16);not null;index:idx_pending_pair"`
	FirstName string    `json:"first_name,omitempty" gorm:"type:varchar(128)"`
	Token     string    `json:"-"          gorm:"type:char(64);not null;uniqueIndex:ux_pending_links_token"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for PendingLink.
func (PendingLink) TableName() string { return "pending_links" }

// Trial is the metered free allowance for one (chat_id, character) pair. It
// exists independently of any account or link: a never-linked chat still
// accumulates trial state.
//
// Fields:
//   - MessagesRemaining: never negative; decrement is a no-op at zero.
//   - TrialExhaustedAt: set when remaining first reaches zero; gates the
//     reactivation sweep.
//   - BumpGiven: whether the one-time reactivation has been granted. Never
//     reset once true.
type Trial struct {
	ID                string     `json:"id"                 gorm:"type:char(36);primaryKey"`
	ChatID            string     `json:"chat_id"            gorm:"type:varchar(64);not null;uniqueIndex:ux_trials"`
	Character         Character  `json:"character"          gorm:"type:varchar(16);not null;uniqueIndex:ux_trials"`
	MessagesRemaining int        `json:"messages_remaining" gorm:"not null"`
	TrialExhaustedAt  *time.Time `json:"trial_exhausted_at" gorm:"index"`
	BumpGiven         bool       `json:"bump_given"         gorm:"not null;default:false"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TableName returns the database table name for Trial.
func (Trial) TableName() string { return "trials" }

// Subscription records one payment-provider subscription lifecycle tied to an
// account. StripeSubscriptionID is the idempotency key for lifecycle events:
// updates target the most recently created row matching that id.
type Subscription struct {
	ID                   string     `json:"id"                     gorm:"type:char(36);primaryKey"`
	AccountID            string     `json:"account_id"             gorm:"type:char(36);not null;index"`
	StripeSubscriptionID string     `json:"stripe_subscription_id" gorm:"type:varchar(64);not null;index"`
	Tier                 int        `json:"tier"                   gorm:"not null"`
	Status               string     `json:"status"                 gorm:"type:varchar(32);not null"`
	CurrentPeriodStart   *time.Time `json:"current_period_start"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	CreatedAt            time.Time  `json:"created_at"`

	Account Account `json:"-" gorm:"foreignKey:AccountID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// WebhookEvent marks a payment-provider event as processed so that
// at-least-once webhook delivery cannot apply the same event twice. Rows
// expire and are lazily purged; the unique event id is the dedup key.
type WebhookEvent struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	EventID   string    `json:"event_id"   gorm:"type:varchar(128);not null;uniqueIndex:ux_webhook_events_event"`
	EventType string    `json:"event_type" gorm:"type:varchar(64);not null"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

// TableName returns the database table name for WebhookEvent.
func (WebhookEvent) TableName() string { return "webhook_events" }
