package events

import (
	"go.uber.org/zap"

	"github.com/roach88/qexec/internal/result"
)

// Monitor returns hooks that log every query, received result and failure.
func Monitor(logger *zap.Logger) Hooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Hooks{
		Query: func(ec Context) error {
			logger.Debug("query", contextFields(ec)...)
			return nil
		},
		Receive: func(rows []result.Row, res *result.Result, ec Context) error {
			logger.Debug("receive", append(contextFields(ec),
				zap.Int("rows", len(rows)),
				zap.Duration("duration", res.Duration),
			)...)
			return nil
		},
		Error: func(err error, ec Context) {
			logger.Error("query failed", append(contextFields(ec), zap.Error(err))...)
		},
	}
}

func contextFields(ec Context) []zap.Field {
	fields := []zap.Field{zap.String("query", ec.Text)}
	if len(ec.Params) > 0 {
		fields = append(fields, zap.Any("params", ec.Params))
	}
	if ec.ID != "" {
		fields = append(fields, zap.String("id", ec.ID))
	}
	if ec.Tag != nil {
		fields = append(fields, zap.Any("tag", ec.Tag))
	}
	return fields
}
