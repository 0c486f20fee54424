// internal/model/lead.go
package model

import "time"

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelWeChat   Channel = "wechat"
	ChannelSMS      Channel = "sms"
)

// AutoChannelRanking breaks reachability-score ties when a lead is in auto
// channel-selection mode. Ordered by typical response latency.
var AutoChannelRanking = []Channel{ChannelWhatsApp, ChannelEmail, ChannelWeChat, ChannelSMS}

type ChannelMode string

const (
	ChannelModeAuto   ChannelMode = "auto"
	ChannelModeManual ChannelMode = "manual"
)

type LeadStatus string

const (
	LeadStatusPending   LeadStatus = "pending"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusEngaged   LeadStatus = "engaged"
	LeadStatusClosed    LeadStatus = "closed"
)

// ChannelValidation holds per-channel reachability scores (0-100) from the
// last contact validation run. Zero means unvalidated or unreachable.
type ChannelValidation struct {
	WhatsApp int `db:"whatsapp_score" json:"whatsapp"`
	Email    int `db:"email_score" json:"email"`
	WeChat   int `db:"wechat_score" json:"wechat"`
	SMS      int `db:"sms_score" json:"sms"`
}

// Score returns the reachability score for one channel.
func (v ChannelValidation) Score(ch Channel) int {
	switch ch {
	case ChannelWhatsApp:
		return v.WhatsApp
	case ChannelEmail:
		return v.Email
	case ChannelWeChat:
		return v.WeChat
	case ChannelSMS:
		return v.SMS
	}
	return 0
}

type Lead struct {
	ID               int               `db:"id" json:"id"`
	FirstName        string            `db:"first_name" json:"first_name"`
	LastName         string            `db:"last_name" json:"last_name"`
	Company          string            `db:"company" json:"company"`
	Location         string            `db:"location" json:"location"`
	PreferredProduct string            `db:"preferred_product" json:"preferred_product"`
	Phone            string            `db:"phone" json:"phone"`
	Email            string            `db:"email" json:"email"`
	PreferredChannel Channel           `db:"preferred_channel" json:"preferred_channel"`
	ChannelMode      ChannelMode       `db:"channel_mode" json:"channel_mode"`
	Status           LeadStatus        `db:"status" json:"status"`
	NeedsHumanReview bool              `db:"needs_human_review" json:"needs_human_review"`
	Validation       ChannelValidation `json:"validation"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// Contact returns the address used to reach the lead on the given channel.
// Chat channels use the phone number, email uses the email address.
func (l *Lead) Contact(ch Channel) string {
	if ch == ChannelEmail {
		return l.Email
	}
	return l.Phone
}
