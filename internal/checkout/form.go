package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-playground/validator/v10"
)

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cod"
	PaymentCard           PaymentMethod = "credit_debit"
	PaymentEWallet        PaymentMethod = "ewallet"
)

const expiryLayout = "01/06"

// Form is what the shopper submits on the checkout page.
type Form struct {
	Name    string        `json:"name" validate:"required,min=2,max=100"`
	Address string        `json:"address" validate:"required,max=200"`
	City    string        `json:"city" validate:"required,max=100"`
	Zip     string        `json:"zip" validate:"required,min=3,max=10"`
	Country string        `json:"country" validate:"required,oneof=USA Canada UK"`
	Payment PaymentMethod `json:"payment" validate:"required,oneof=cod credit_debit ewallet"`

	// only read for credit_debit
	CardNumber string `json:"card_number,omitempty"`
	Expiry     string `json:"expiry,omitempty"`
	CVV        string `json:"cvv,omitempty"`
}

type card struct {
	CardNumber string `json:"card_number" validate:"required,credit_card"`
	Expiry     string `json:"expiry" validate:"required,datetime=01/06"`
	CVV        string `json:"cvv" validate:"required,numeric,min=3,max=4"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateForm checks f and returns a *domain.ValidationError naming the
// first offending field.
func validateForm(v *validator.Validate, f Form, now time.Time) error {
	if err := v.Struct(f); err != nil {
		return mapValidationError(err)
	}
	if f.Payment != PaymentCard {
		return nil
	}

	c := card{
		CardNumber: strings.ReplaceAll(f.CardNumber, " ", ""),
		Expiry:     f.Expiry,
		CVV:        f.CVV,
	}
	if err := v.Struct(c); err != nil {
		return mapValidationError(err)
	}

	exp, err := time.Parse(expiryLayout, f.Expiry)
	if err != nil {
		return domain.NewValidationError("expiry", "must be MM/YY")
	}
	// cards are valid through the last day of the expiry month
	if !now.Before(exp.AddDate(0, 1, 0)) {
		return domain.NewValidationError("expiry", "card has expired")
	}
	return nil
}

func mapValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate checkout form: %w", err)
	}

	fe := verrs[0]
	return domain.NewValidationError(fe.Field(), reason(fe))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "credit_card":
		return "is not a valid card number"
	case "datetime":
		return "must be MM/YY"
	case "numeric":
		return "must contain digits only"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// last4 returns the trailing four digits of a card number for the receipt.
func last4(number string) string {
	digits := strings.ReplaceAll(number, " ", "")
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}
