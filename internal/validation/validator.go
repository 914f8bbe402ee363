package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/veranemoloko/model-fetcher/internal/archive"
)

var modelIDPattern = regexp.MustCompile(`^[A-Za-z0-9][\w.-]*(/[A-Za-z0-9][\w.-]*)?$`)

// New returns a validator with the custom tags used by request DTOs:
// model_id, http_url, archive_name and archive_format.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)

	_ = v.RegisterValidation("model_id", validateModelID)
	_ = v.RegisterValidation("http_url", validateHTTPURL)
	_ = v.RegisterValidation("archive_name", validateArchiveName)
	_ = v.RegisterValidation("archive_format", validateArchiveFormat)
	return v
}

func validateModelID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if !modelIDPattern.MatchString(id) {
		return false
	}
	for _, part := range strings.Split(id, "/") {
		if part == "." || part == ".." || strings.Contains(part, "..") {
			return false
		}
	}
	return true
}

var forbiddenHosts = []string{
	"localhost",
	"127.0.0.1",
	"::1",
	"0.0.0.0",
	"169.254.169.254",
}

// validateHTTPURL accepts absolute http(s) URLs on public hosts. Mirrors are
// fetched server side, so loopback, private and link-local addresses are refused.
func validateHTTPURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := u.Hostname()
	if host == "" {
		return false
	}
	for _, forbidden := range forbiddenHosts {
		if strings.EqualFold(host, forbidden) {
			return false
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return false
		}
	}
	return true
}

func validateArchiveName(fl validator.FieldLevel) bool {
	return filepath.IsLocal(fl.Field().String())
}

func validateArchiveFormat(fl validator.FieldLevel) bool {
	_, err := archive.ParseFormat(fl.Field().String())
	return err == nil
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// Message turns validator errors into one line a client can act on.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	case "model_id":
		return fmt.Sprintf("%s must look like 'organization/model'", fe.Field())
	case "http_url":
		return fmt.Sprintf("%s must be an http or https URL", fe.Field())
	case "archive_name":
		return fmt.Sprintf("%s must be a relative name without '..'", fe.Field())
	case "archive_format":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), strings.Join(archive.Formats(), ", "))
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}
