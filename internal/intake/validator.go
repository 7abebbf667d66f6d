package intake

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"diningflow/internal/config"
	"diningflow/internal/domain"
)

// Slot names as delivered by the NLU collaborator.
const (
	SlotCuisine        = "cuisine"
	SlotLocation       = "location"
	SlotPartySize      = "party_size"
	SlotDate           = "date"
	SlotTime           = "time"
	SlotContactAddress = "contact_address"
)

var requiredSlots = []string{
	SlotCuisine, SlotLocation, SlotPartySize, SlotDate, SlotTime, SlotContactAddress,
}

// Validator turns a raw slot mapping into a Request, or rejects it
// with a ValidationError naming the first offending slot. It never
// builds a partial Request and touches neither the queue nor the store.
type Validator struct {
	maxPartySize int
	cuisines     map[string]struct{}
	locations    []string
	validate     *validator.Validate
	now          func() time.Time
}

func NewValidator(cfg config.Config) *Validator {
	v := &Validator{
		maxPartySize: cfg.MaxPartySize,
		validate:     validator.New(),
		now:          time.Now,
		locations:    cfg.AllowedLocations,
	}
	if len(cfg.AllowedCuisines) > 0 {
		v.cuisines = make(map[string]struct{}, len(cfg.AllowedCuisines))
		for _, c := range cfg.AllowedCuisines {
			v.cuisines[strings.ToLower(c)] = struct{}{}
		}
	}
	return v
}

func (v *Validator) Validate(slots map[string]string) (domain.Request, error) {
	for _, name := range requiredSlots {
		if strings.TrimSpace(slots[name]) == "" {
			return domain.Request{}, &domain.ValidationError{Slot: name, Reason: "required slot is missing"}
		}
	}

	cuisine := strings.ToLower(strings.TrimSpace(slots[SlotCuisine]))
	if v.cuisines != nil {
		if _, ok := v.cuisines[cuisine]; !ok {
			return domain.Request{}, &domain.ValidationError{Slot: SlotCuisine, Reason: fmt.Sprintf("cuisine %q is not supported", cuisine)}
		}
	}

	location := strings.TrimSpace(slots[SlotLocation])
	if len(v.locations) > 0 && !v.locationAllowed(location) {
		return domain.Request{}, &domain.ValidationError{Slot: SlotLocation, Reason: fmt.Sprintf("location %q is not served", location)}
	}

	partySize, err := strconv.Atoi(strings.TrimSpace(slots[SlotPartySize]))
	if err != nil {
		return domain.Request{}, &domain.ValidationError{Slot: SlotPartySize, Reason: "must be an integer"}
	}
	if partySize <= 0 {
		return domain.Request{}, &domain.ValidationError{Slot: SlotPartySize, Reason: "must be positive"}
	}
	if partySize > v.maxPartySize {
		return domain.Request{}, &domain.ValidationError{Slot: SlotPartySize, Reason: fmt.Sprintf("must be at most %d", v.maxPartySize)}
	}

	rawDate := strings.TrimSpace(slots[SlotDate])
	date, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		return domain.Request{}, &domain.ValidationError{Slot: SlotDate, Reason: "must be a calendar date (YYYY-MM-DD)"}
	}
	now := v.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return domain.Request{}, &domain.ValidationError{Slot: SlotDate, Reason: "must not be in the past"}
	}

	rawTime := strings.TrimSpace(slots[SlotTime])
	if _, err := time.Parse("15:04", rawTime); err != nil {
		return domain.Request{}, &domain.ValidationError{Slot: SlotTime, Reason: "must be a time of day (HH:MM)"}
	}

	addr := strings.TrimSpace(slots[SlotContactAddress])
	if err := v.validate.Var(addr, "required,email"); err != nil {
		return domain.Request{}, &domain.ValidationError{Slot: SlotContactAddress, Reason: "must be a valid email address"}
	}

	return domain.Request{
		Cuisine:        cuisine,
		Location:       location,
		PartySize:      partySize,
		Date:           rawDate,
		Time:           rawTime,
		ContactAddress: addr,
		CreatedAt:      now,
	}, nil
}

// locationAllowed mirrors the token-containment check used upstream:
// the location passes if any allowed token appears in it.
func (v *Validator) locationAllowed(location string) bool {
	norm := strings.ToLower(location)
	for _, token := range v.locations {
		if strings.Contains(norm, token) {
			return true
		}
	}
	return false
}
