package validation

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/integrations/nrpkgerrors"
	"github.com/newrelic/go-agent/v3/newrelic"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// step pairs a section with the schema configured for it.
type step struct {
	section Section
	schema  Schema
}

// ValidateRequest returns an Echo middleware that validates the configured
// sections of each request before handing it to the next handler.
//
// For every configured section, in the fixed order body, params, query:
//   - the section is parsed by its Schema (one call, no retry);
//   - on success the returned keys are copied onto the section map, which is
//     then mirrored onto the request (body bytes, path params, query string);
//   - on *Error the chain stops with 422 and the issues as JSON body;
//   - on any other error the chain stops and the error is returned, wrapped
//     in *SectionError, for the Echo error handler.
//
// When every section passes, next is called. With no schema configured the
// middleware only calls next.
//
// Usage:
//
//	g.PUT("/users/:id", h.UpdateUser, validation.ValidateRequest(validation.Validators{
//		Body:   bodySchema,
//		Params: paramsSchema,
//	}))
func ValidateRequest(v Validators) echo.MiddlewareFunc {
	steps := make([]step, 0, 3)
	if v.Body != nil {
		steps = append(steps, step{section: SectionBody, schema: v.Body})
	}
	if v.Params != nil {
		steps = append(steps, step{section: SectionParams, schema: v.Params})
	}
	if v.Query != nil {
		steps = append(steps, step{section: SectionQuery, schema: v.Query})
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if len(steps) == 0 {
			return next
		}

		return func(c echo.Context) error {
			ctx := c.Request().Context()
			logger := zerolog.Ctx(ctx)
			txn := newrelic.FromContext(ctx)
			start := time.Now()

			sections := sectionsFor(c)

			for _, st := range steps {
				current, err := sections.load(c, st.section)
				if err != nil {
					// Undecodable input never reaches the schema; the error
					// already carries its HTTP status (400, 413, 415).
					recordOutcome(txn, "failed", st.section, start)
					return err
				}

				validated, err := parse(ctx, st.schema, current)
				if err != nil {
					var validationErr *Error
					if errors.As(err, &validationErr) {
						logger.Info().
							Str("section", string(st.section)).
							Int("issues", len(validationErr.Issues)).
							Dur("validation_duration", time.Since(start)).
							Msg("request validation failed")

						recordOutcome(txn, "failed", st.section, start)

						issues := validationErr.Issues
						if issues == nil {
							issues = []Issue{}
						}
						return c.JSON(http.StatusUnprocessableEntity, issues)
					}

					logger.Error().
						Err(err).
						Str("section", string(st.section)).
						Msg("schema failed unexpectedly")

					recordOutcome(txn, "error", st.section, start)
					if txn != nil {
						txn.NoticeError(nrpkgerrors.Wrap(err))
					}

					return &SectionError{Section: st.section, Err: err}
				}

				maps.Copy(current, validated)

				if err := writeBack(c, st.section, current); err != nil {
					recordOutcome(txn, "error", st.section, start)
					return &SectionError{Section: st.section, Err: err}
				}
			}

			logger.Debug().
				Dur("validation_duration", time.Since(start)).
				Msg("request validation successful")

			recordOutcome(txn, "success", "", start)

			return next(c)
		}
	}
}

// parse runs schema.Parse and turns a panic into an error so a broken
// schema surfaces through the error handler like any other fault.
func parse(ctx context.Context, schema Schema, input map[string]any) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = pkgerrors.Wrap(rerr, "schema panicked")
				return
			}
			err = pkgerrors.Errorf("schema panicked: %v", r)
		}
	}()

	return schema.Parse(ctx, input)
}

// recordOutcome attaches validation attributes to the New Relic transaction.
func recordOutcome(txn *newrelic.Transaction, status string, section Section, start time.Time) {
	if txn == nil {
		return
	}

	txn.AddAttribute("validation.status", status)
	txn.AddAttribute("validation.duration_ms", time.Since(start).Milliseconds())
	if section != "" {
		txn.AddAttribute("validation.section", string(section))
	}
}
