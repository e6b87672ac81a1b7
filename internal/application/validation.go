package application

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	maxDates             = 31
	maxParticipants      = 50
	maxNameLength        = 50
	defaultStartHour     = 9
	defaultEndHour       = 22
	dateLayout           = "2006-01-02"
)

// normalizeName trims and NFC-normalizes a display name.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func validateName(field, name string) (string, *ValidationError) {
	vErr := &ValidationError{}
	normalized := normalizeName(name)
	switch {
	case normalized == "":
		vErr.add(field, "name is required")
	case utf8.RuneCountInString(normalized) > maxNameLength:
		vErr.add(field, fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	return normalized, vErr
}

func validateCreateInput(input CreateMeetingInput) (CreateMeetingInput, *ValidationError) {
	vErr := &ValidationError{}
	out := CreateMeetingInput{AllowGuest: input.AllowGuest}

	out.Title = normalizeName(input.Title)
	switch {
	case out.Title == "":
		vErr.add("title", "title is required")
	case utf8.RuneCountInString(out.Title) > maxTitleLength:
		vErr.add("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}

	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if utf8.RuneCountInString(description) > maxDescriptionLength {
			vErr.add("description", fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
		}
		if description != "" {
			out.Description = &description
		}
	}

	dates, datesErr := validateDates(input.Dates)
	vErr.merge(datesErr)
	out.Dates = dates

	names, namesErr := validateParticipantNames(input.ParticipantNames)
	vErr.merge(namesErr)
	out.ParticipantNames = names

	start, end := defaultStartHour, defaultEndHour
	if input.StartHour != nil {
		start = *input.StartHour
	}
	if input.EndHour != nil {
		end = *input.EndHour
	}
	if start < 0 || start > 23 {
		vErr.add("startHour", "startHour must be between 0 and 23")
	}
	if end < 1 || end > 24 {
		vErr.add("endHour", "endHour must be between 1 and 24")
	}
	if start >= end {
		vErr.add("endHour", "endHour must be after startHour")
	}
	out.StartHour, out.EndHour = &start, &end

	return out, vErr
}

// validateParticipantNames drops blank entries and bounds the roster.
func validateParticipantNames(raw []string) ([]string, *ValidationError) {
	vErr := &ValidationError{}
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		name := normalizeName(r)
		if name == "" {
			continue
		}
		if utf8.RuneCountInString(name) > maxNameLength {
			vErr.add("participantNames", fmt.Sprintf("names must be at most %d characters", maxNameLength))
			continue
		}
		names = append(names, name)
	}
	switch {
	case len(names) == 0:
		vErr.add("participantNames", "at least one participant is required")
	case len(names) > maxParticipants:
		vErr.add("participantNames", fmt.Sprintf("at most %d participants are allowed", maxParticipants))
	}
	return names, vErr
}

func validateDates(raw []string) ([]string, *ValidationError) {
	vErr := &ValidationError{}
	if len(raw) == 0 {
		vErr.add("dates", "at least one date is required")
		return nil, vErr
	}
	if len(raw) > maxDates {
		vErr.add("dates", fmt.Sprintf("at most %d dates are allowed", maxDates))
		return nil, vErr
	}
	seen := make(map[string]struct{}, len(raw))
	dates := make([]string, 0, len(raw))
	for _, d := range raw {
		d = strings.TrimSpace(d)
		parsed, err := time.Parse(dateLayout, d)
		if err != nil || parsed.Format(dateLayout) != d {
			vErr.add("dates", fmt.Sprintf("%q is not a YYYY-MM-DD date", d))
			continue
		}
		if _, dup := seen[d]; dup {
			vErr.add("dates", fmt.Sprintf("%q is listed more than once", d))
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	return dates, vErr
}
