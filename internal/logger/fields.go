package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the embedding provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the embedding model identifier.
	FieldModel = "ai_model"
	// FieldRequestID identifies one ranking request across log lines.
	FieldRequestID = "request_id"
	// FieldSchemeID identifies a catalog scheme.
	FieldSchemeID = "scheme_id"
	// FieldQuery carries a preview of the requester's free text.
	FieldQuery = "query"

	queryPreviewLen = 120
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts key/value pairs into zap fields, omitting entries with
// blank keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to the logger, defaulting to a no-op logger when
// nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields describes the embedding provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// RequestFields identifies one ranking request. The query is truncated.
func RequestFields(requestID, query string) []zap.Field {
	return StringFields(
		StringField{Key: FieldRequestID, Value: requestID},
		StringField{Key: FieldQuery, Value: TruncateForLog(query, queryPreviewLen)},
	)
}

// Scheme returns the field identifying a scheme.
func Scheme(id string) zap.Field {
	return zap.String(FieldSchemeID, id)
}
