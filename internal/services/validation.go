package services

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/eventdesk/accounts/types"
)

// SignupRequest is the registration payload.
type SignupRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	Role           string `json:"role"`
	CompanyName    string `json:"company_name"`
	CompanyAddress string `json:"company_address"`
	ContactPerson  string `json:"contact_person"`
	Location       string `json:"location"`
}

// Normalize trims every field and lower-cases the email and role. The
// password is left untouched.
func (r SignupRequest) Normalize() SignupRequest {
	r.Email = normalizeEmail(r.Email)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.CompanyAddress = strings.TrimSpace(r.CompanyAddress)
	r.ContactPerson = strings.TrimSpace(r.ContactPerson)
	r.Location = strings.TrimSpace(r.Location)
	return r
}

// Validate checks the payload. Organizer-only fields become required when
// the organizer role is requested.
func (r SignupRequest) Validate() error {
	organizer := types.Role(r.Role) == types.RoleOrganizer

	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Phone, validation.Length(0, 32)),
		validation.Field(&r.Role, validation.Required, validation.By(knownRole)),
		validation.Field(&r.CompanyName, requiredIf(organizer, validation.Length(1, 200))...),
		validation.Field(&r.CompanyAddress, validation.Length(0, 300)),
		validation.Field(&r.ContactPerson, requiredIf(organizer, validation.Length(1, 200))...),
		validation.Field(&r.Location, requiredIf(organizer, validation.Length(1, 300))...),
	))
}

// LoginRequest is the credential payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Normalize() LoginRequest {
	r.Email = normalizeEmail(r.Email)
	return r
}

func (r LoginRequest) Validate() error {
	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	))
}

// ResendRequest asks for a fresh verification email.
type ResendRequest struct {
	Email string `json:"email"`
}

func (r ResendRequest) Normalize() ResendRequest {
	r.Email = normalizeEmail(r.Email)
	return r
}

func (r ResendRequest) Validate() error {
	return asValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func requiredIf(required bool, rules ...validation.Rule) []validation.Rule {
	if !required {
		return rules
	}
	return append([]validation.Rule{validation.Required}, rules...)
}

func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		fields := make(map[string]string, len(errs))
		for field, ferr := range errs {
			fields[field] = ferr.Error()
		}
		return &ValidationError{Fields: fields}
	}
	return err
}

func knownRole(value any) error {
	s, _ := value.(string)
	if s == "" || types.Role(s).Valid() {
		return nil
	}
	names := make([]string, len(types.Roles))
	for i, role := range types.Roles {
		names[i] = role.String()
	}
	return errors.New("must be one of " + strings.Join(names, ", "))
}
