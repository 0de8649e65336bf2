package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/logger"
)

const invalidBodyMessage = "Request body could not be read"

// SetupValidator makes validation errors name fields by their JSON keys
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
	}
}

// bindJSON decodes and validates the body into dst, answering 400 itself on
// failure
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]ValidationDetail, 0, len(verrs))
		for _, e := range verrs {
			details = append(details, ValidationDetail{Field: fieldPath(e), Message: validationMessage(e)})
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, Response{Error: &ErrorInfo{
			Code:    entities.CodeValidation,
			Message: validationFailMessage,
			Details: details,
		}})
		return false
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		fail(c, http.StatusBadRequest, entities.CodeValidation, fmt.Sprintf("Field %s has the wrong type", typeErr.Field))
	case errors.As(err, &syntaxErr), strings.Contains(err.Error(), "EOF"):
		fail(c, http.StatusBadRequest, CodeBadRequest, "Request body must be valid JSON")
	default:
		logger.FromGin(c).Debug("Rejected request body", zap.Error(err))
		fail(c, http.StatusBadRequest, CodeBadRequest, invalidBodyMessage)
	}
	return false
}

// fieldPath drops the top-level struct name from the namespace
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "url":
		return "Must be a valid URL"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		if e.Kind() == reflect.Slice {
			return "Must contain at least " + e.Param() + " items"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "gte":
		return "Must be at least " + e.Param()
	case "numeric":
		return "Must be numeric"
	case "latitude", "longitude":
		return "Must be a valid " + e.Tag()
	}
	return "Invalid value"
}
