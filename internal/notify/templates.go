package notify

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"peer-match/internal/config"
	"peer-match/internal/domain/member"
	"peer-match/internal/domain/reminder"
)

type Templates struct {
	reveal     *template.Template
	reminder   *template.Template
	noUsername string
}

type revealData struct {
	Name     string
	Bio      string
	Contact  string
	Username string
}

type reminderData struct {
	StartsAt string
	Event    reminder.Event
}

func NewTemplates(cfg config.NotifyConfig) (*Templates, error) {
	revealSrc := cfg.RevealTemplate
	if strings.TrimSpace(revealSrc) == "" {
		revealSrc = config.DefaultRevealTemplate
	}
	reminderSrc := cfg.ReminderTemplate
	if strings.TrimSpace(reminderSrc) == "" {
		reminderSrc = config.DefaultReminderTemplate
	}
	noUsername := cfg.NoUsernameText
	if strings.TrimSpace(noUsername) == "" {
		noUsername = config.DefaultNoUsernameText
	}

	rv, err := template.New("reveal").Option("missingkey=error").Parse(revealSrc)
	if err != nil {
		return nil, fmt.Errorf("parse reveal template: %w", err)
	}
	rm, err := template.New("reminder").Option("missingkey=error").Parse(reminderSrc)
	if err != nil {
		return nil, fmt.Errorf("parse reminder template: %w", err)
	}

	return &Templates{reveal: rv, reminder: rm, noUsername: noUsername}, nil
}

// Reveal renders the message sent to a member describing their counterpart.
func (t *Templates) Reveal(counterpart member.Profile) (string, error) {
	contact, ok := counterpart.ContactLink()
	if !ok {
		contact = t.noUsername
	}

	var sb strings.Builder
	err := t.reveal.Execute(&sb, revealData{
		Name:     counterpart.DisplayName(),
		Bio:      strings.TrimSpace(counterpart.Bio),
		Contact:  contact,
		Username: counterpart.Username,
	})
	if err != nil {
		return "", fmt.Errorf("render reveal: %w", err)
	}
	return sb.String(), nil
}

func (t *Templates) Reminder(e reminder.Event) (string, error) {
	var sb strings.Builder
	err := t.reminder.Execute(&sb, reminderData{
		StartsAt: e.StartsAt.UTC().Format(time.RFC1123),
		Event:    e,
	})
	if err != nil {
		return "", fmt.Errorf("render reminder: %w", err)
	}
	return sb.String(), nil
}
