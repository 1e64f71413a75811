package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var ErrMissingUserID = errors.New("user id is missing")

// IsEmpty checks if a string is empty.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

func GetTraceID(c *gin.Context) (string, error) {
	traceID := c.GetString(pkg.TraceId)
	if IsEmpty(traceID) {
		return "", errors.New("trace id is empty")
	}
	return traceID, nil
}

// GetUserID returns the caller id stored by the RequireUser middleware.
func GetUserID(c *gin.Context) (int64, error) {
	userID := c.GetInt64(pkg.UserId)
	if userID <= 0 {
		return 0, ErrMissingUserID
	}
	return userID, nil
}

// ParseUserID parses the gateway supplied user id header value.
func ParseUserID(raw string) (int64, error) {
	if IsEmpty(raw) {
		return 0, ErrMissingUserID
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

// ParseStructEnv binds env vars to struct fields using a mapstructure tag
func ParseStructEnv(cfg interface{}) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("mapstructure")
		if IsEmpty(tag) {
			continue
		}
		if err := viper.BindEnv(tag); err != nil {
			return err
		}
	}
	return viper.Unmarshal(cfg)
}

// FormatConfigErrors logs every failed field of a validator error and folds them into one error.
func FormatConfigErrors(logger *zap.Logger, err error, cfg interface{}) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	t := reflect.Indirect(reflect.ValueOf(cfg)).Type()
	fields := make([]string, 0, len(vErrs))
	for _, fe := range vErrs {
		name := fe.Field()
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag := f.Tag.Get("mapstructure"); !IsEmpty(tag) {
				name = tag
			}
		}
		logger.Error("invalid config value", zap.String("field", name), zap.String("rule", fe.Tag()), zap.String("param", fe.Param()))
		fields = append(fields, fmt.Sprintf("%s (%s)", name, fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
}
