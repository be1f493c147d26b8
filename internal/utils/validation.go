package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate performs validation on a struct.
func Validate(s interface{}) error {
	return validate.Struct(s)
}

// FormatValidationError formats validation errors into a readable string.
func FormatValidationError(err error) string {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		var errorMessages []string
		for _, e := range errs {
			errorMessages = append(errorMessages, fmt.Sprintf("%s failed on '%s'", e.Field(), e.Tag()))
		}
		return strings.Join(errorMessages, ", ")
	}
	return err.Error()
}

// BindAndValidate binds the request body to a struct and validates it.
// If validation fails, it sends a BadRequest response and returns false.
func BindAndValidate(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			BadRequest(c, "Validation failed: "+FormatValidationError(err))
		} else {
			BadRequest(c, "Invalid request payload: "+err.Error())
		}
		return false
	}
	if err := Validate(obj); err != nil {
		BadRequest(c, "Validation failed: "+FormatValidationError(err))
		return false
	}
	return true
}

// RegisterValidators adds the custom tags used in request structs to gin's validator
// and to the package validator.
func RegisterValidators() error {
	register := func(v *validator.Validate) error {
		return v.RegisterValidation("timeslot", func(fl validator.FieldLevel) bool {
			return ValidateTimeSlot(fl.Field().String()) == nil
		})
	}
	if err := register(validate); err != nil {
		return err
	}
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		return register(v)
	}
	return nil
}

const (
	firstSlotMinutes = 10 * 60
	slotStepMinutes  = 30
)

var timeSlotLayouts = []string{"15:04", "3:04 PM", "03:04 PM", "3:04PM", "03:04PM"}

// ParseTimeSlot parses "HH:MM" or "h:MM AM/PM" into minutes after midnight.
func ParseTimeSlot(slot string) (int, error) {
	slot = strings.ToUpper(strings.TrimSpace(slot))
	for _, layout := range timeSlotLayouts {
		if t, err := time.Parse(layout, slot); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("invalid time slot %q: use HH:MM or h:MM AM/PM", slot)
}

// ValidateTimeSlot checks that a slot starts on a 30 minute boundary no earlier than 10:00.
func ValidateTimeSlot(slot string) error {
	minutes, err := ParseTimeSlot(slot)
	if err != nil {
		return err
	}
	if minutes < firstSlotMinutes {
		return fmt.Errorf("time slot %s is before 10:00", slot)
	}
	if minutes%slotStepMinutes != 0 {
		return fmt.Errorf("time slot %s is not on a 30 minute boundary", slot)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date in the server's local time zone.
func ParseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", value)
	}
	return d, nil
}
