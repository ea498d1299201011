package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxWelcomeButtons is the provider's limit on quick-reply buttons.
const MaxWelcomeButtons = 3

// AppSettings is the singleton inbox configuration edited from the dashboard.
type AppSettings struct {
	AwayMessage    AwayMessage    `json:"awayMessage"`
	BusinessHours  BusinessHours  `json:"businessHours"`
	WelcomeMessage WelcomeMessage `json:"welcomeMessage"`
}

// AwayMessage is sent to customers who open a conversation outside business hours.
type AwayMessage struct {
	Enabled bool   `json:"enabled"`
	Text    string `json:"text"`
}

// BusinessHours are evaluated in UTC. Days uses 0 = Sunday ... 6 = Saturday.
type BusinessHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  []int  `json:"days"`
}

// WelcomeMessage greets a customer on first contact. When Template is set
// the named provider template is sent; otherwise Text is sent, with Buttons
// as quick replies when present.
type WelcomeMessage struct {
	Enabled  bool          `json:"enabled"`
	Text     string        `json:"text"`
	Template string        `json:"template,omitempty"`
	Buttons  []ReplyButton `json:"buttons,omitempty"`
}

// ReplyButton is a quick-reply button.
type ReplyButton struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DefaultSettings returns the settings used before any are saved.
func DefaultSettings() *AppSettings {
	return &AppSettings{
		AwayMessage: AwayMessage{
			Enabled: false,
			Text:    "Thanks for your message! We're currently closed and will reply when we're back.",
		},
		BusinessHours: BusinessHours{
			Start: "09:00",
			End:   "17:00",
			Days:  []int{1, 2, 3, 4, 5},
		},
		WelcomeMessage: WelcomeMessage{
			Enabled: false,
			Text:    "Hi! Thanks for reaching out. An agent will be with you shortly.",
		},
	}
}

// Validate checks the settings before they are saved.
func (s *AppSettings) Validate() error {
	if _, err := parseHour(s.BusinessHours.Start); err != nil {
		return fmt.Errorf("businessHours.start: %w", err)
	}
	if _, err := parseHour(s.BusinessHours.End); err != nil {
		return fmt.Errorf("businessHours.end: %w", err)
	}
	for _, d := range s.BusinessHours.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("businessHours.days: %d is not a weekday (0-6)", d)
		}
	}
	if s.AwayMessage.Enabled && strings.TrimSpace(s.AwayMessage.Text) == "" {
		return errors.New("awayMessage.text is required when enabled")
	}
	w := s.WelcomeMessage
	if len(w.Buttons) > MaxWelcomeButtons {
		return fmt.Errorf("welcomeMessage.buttons: at most %d allowed", MaxWelcomeButtons)
	}
	for i, b := range w.Buttons {
		if strings.TrimSpace(b.Title) == "" {
			return fmt.Errorf("welcomeMessage.buttons[%d]: title is required", i)
		}
	}
	if w.Enabled && w.Template == "" && strings.TrimSpace(w.Text) == "" {
		return errors.New("welcomeMessage needs a template or text when enabled")
	}
	return nil
}

// Contains reports whether t falls within business hours.
//
// Only the hour component of Start and End is compared; the range is
// [start, end) at hour granularity and minutes are ignored.
func (b BusinessHours) Contains(t time.Time) (bool, error) {
	start, err := parseHour(b.Start)
	if err != nil {
		return false, fmt.Errorf("businessHours.start: %w", err)
	}
	end, err := parseHour(b.End)
	if err != nil {
		return false, fmt.Errorf("businessHours.end: %w", err)
	}

	t = t.UTC()
	day := int(t.Weekday())
	open := false
	for _, d := range b.Days {
		if d == day {
			open = true
			break
		}
	}
	if !open {
		return false, nil
	}

	hour := t.Hour()
	return hour >= start && hour < end, nil
}

// parseHour parses "HH:MM" and returns HH.
func parseHour(hhmm string) (int, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%q is not HH:MM", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("%q has an invalid hour", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%q has an invalid minute", hhmm)
	}
	return hour, nil
}
