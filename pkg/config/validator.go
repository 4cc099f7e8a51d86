package config

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// s3BucketPattern follows the S3 bucket naming rules for DNS-compatible names.
var s3BucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// RegisterCustomValidators registers custom validation functions
func RegisterCustomValidators(v *validator.Validate) error {
	return v.RegisterValidation("s3_bucket", validateS3Bucket)
}

// validateS3Bucket accepts empty values; presence is checked per source driver.
func validateS3Bucket(fl validator.FieldLevel) bool {
	bucket := fl.Field().String()
	if bucket == "" {
		return true
	}
	return s3BucketPattern.MatchString(bucket)
}
