package domain

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	inputValidator = newInputValidator()

	// GitHub logins: alphanumerics and single hyphens, no leading hyphen, at most 39 chars.
	loginRegex = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)
	repoRegex  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

func newInputValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("gh-login", func(fl validator.FieldLevel) bool {
		return loginRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic("failed to register gh-login validation: " + err.Error())
	}
	if err := v.RegisterValidation("gh-repo", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return repoRegex.MatchString(name) && name != "." && name != ".."
	}); err != nil {
		panic("failed to register gh-repo validation: " + err.Error())
	}
	return v
}

// ValidateRepository checks owner and repository names before any request is sent.
func ValidateRepository(owner, repo string) error {
	if err := inputValidator.Var(owner, "required,gh-login"); err != nil {
		return NewValidationError("owner", owner, "must be a valid GitHub account name")
	}
	if err := inputValidator.Var(repo, "required,gh-repo"); err != nil {
		return NewValidationError("repo", repo, "must be a valid repository name")
	}
	return nil
}

// ValidateUsername checks a GitHub login.
func ValidateUsername(username string) error {
	if err := inputValidator.Var(username, "required,gh-login"); err != nil {
		return NewValidationError("username", username, "must be a valid GitHub account name")
	}
	return nil
}

// ValidateBranch rejects names git would refuse as a ref. Empty means all branches.
func ValidateBranch(branch string) error {
	if branch == "" {
		return nil
	}
	if len(branch) > 255 || strings.ContainsAny(branch, " ~^:?*[\\") || strings.Contains(branch, "..") ||
		strings.HasPrefix(branch, "/") || strings.HasSuffix(branch, "/") || strings.HasSuffix(branch, ".lock") {
		return NewValidationError("branch", branch, "must be a valid git ref name")
	}
	return nil
}
