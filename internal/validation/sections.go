package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/deppfellow/reqvalid/internal/errs"
	"github.com/go-viper/mapstructure/v2"
	"github.com/labstack/echo/v4"
)

// SectionsKey is the Echo context key holding the request's *Sections.
const SectionsKey = "validation_sections"

// Sections holds the key/value view of the three validated parts of a request.
//
// A nil map means the section has not been read from the request yet.
// Sections are request-scoped: they live in the Echo context and are never
// shared between requests.
type Sections struct {
	Body   map[string]any
	Params map[string]any
	Query  map[string]any
}

// sectionsFor returns the request's Sections, creating them on first use.
func sectionsFor(c echo.Context) *Sections {
	if s, ok := c.Get(SectionsKey).(*Sections); ok {
		return s
	}

	s := &Sections{}
	c.Set(SectionsKey, s)
	return s
}

// load returns the map for section, reading it from the request the first time.
func (s *Sections) load(c echo.Context, section Section) (map[string]any, error) {
	switch section {
	case SectionBody:
		if s.Body == nil {
			body, err := readBody(c.Request())
			if err != nil {
				return nil, err
			}
			s.Body = body
		}
		return s.Body, nil

	case SectionParams:
		if s.Params == nil {
			params := make(map[string]any, len(c.ParamNames()))
			values := c.ParamValues()
			for i, name := range c.ParamNames() {
				if i < len(values) {
					params[name] = values[i]
				}
			}
			s.Params = params
		}
		return s.Params, nil

	case SectionQuery:
		if s.Query == nil {
			s.Query = valuesToMap(c.QueryParams())
		}
		return s.Query, nil
	}

	return nil, fmt.Errorf("unknown section %q", section)
}

// readBody decodes the request body into a map and puts the bytes back so
// later readers (c.Bind, proxies) still see them.
//
// An empty body is an empty map. JSON bodies must be objects; urlencoded
// forms become string / []any values like the query string.
func readBody(req *http.Request) (map[string]any, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return map[string]any{}, nil
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		// BodyLimit reports oversize bodies through the read error; keep it as is.
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(data))

	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	contentType := req.Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(contentType, echo.MIMEApplicationForm):
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return nil, errs.NewBadRequestError("Request body is not a valid form", false, nil, nil, nil)
		}
		return valuesToMap(values), nil

	case contentType == "" || strings.HasPrefix(contentType, echo.MIMEApplicationJSON):
		var body map[string]any
		if err := decodeJSONObject(data, &body); err != nil {
			return nil, errs.NewBadRequestError("Request body must be a JSON object", false, nil, nil, nil)
		}
		if body == nil {
			body = map[string]any{}
		}
		return body, nil

	default:
		return nil, echo.ErrUnsupportedMediaType
	}
}

// decodeJSONObject decodes data keeping numbers as json.Number, so integers
// beyond float64 precision survive the round trip through a section.
func decodeJSONObject(data []byte, out *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(out); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON object")
	}
	return nil
}

// writeBack mirrors a merged section onto the underlying request so handlers
// using c.Bind, c.Param or c.QueryParam observe validated values too.
func writeBack(c echo.Context, section Section, values map[string]any) error {
	switch section {
	case SectionBody:
		req := c.Request()

		var data []byte
		if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationForm) {
			data = []byte(mapToValues(values).Encode())
		} else {
			encoded, err := json.Marshal(values)
			if err != nil {
				return fmt.Errorf("encode validated body: %w", err)
			}
			data = encoded
		}

		req.Body = io.NopCloser(bytes.NewReader(data))
		req.ContentLength = int64(len(data))
		req.Header.Set(echo.HeaderContentLength, strconv.Itoa(len(data)))

	case SectionParams:
		names := c.ParamNames()
		paramValues := append([]string(nil), c.ParamValues()...)
		for i, name := range names {
			if i >= len(paramValues) {
				break
			}
			if v, ok := values[name]; ok {
				paramValues[i] = stringify(v)
			}
		}
		c.SetParamValues(paramValues...)

	case SectionQuery:
		// QueryParams returns Echo's cached url.Values; updating it in place
		// keeps c.QueryParam consistent with the rewritten RawQuery.
		query := c.QueryParams()
		for k, v := range values {
			if v == nil {
				delete(query, k)
				continue
			}
			query[k] = toStrings(v)
		}
		c.Request().URL.RawQuery = query.Encode()
	}

	return nil
}

// Body returns the request body as a map, reading it if no validator did.
// It returns an empty map when the body cannot be decoded.
func Body(c echo.Context) map[string]any {
	return sectionOrEmpty(c, SectionBody)
}

// Params returns the path parameters as a map.
func Params(c echo.Context) map[string]any {
	return sectionOrEmpty(c, SectionParams)
}

// Query returns the query string as a map. Repeated keys hold []any.
func Query(c echo.Context) map[string]any {
	return sectionOrEmpty(c, SectionQuery)
}

func sectionOrEmpty(c echo.Context, section Section) map[string]any {
	values, err := sectionsFor(c).load(c, section)
	if err != nil {
		return map[string]any{}
	}
	return values
}

// Bind decodes the body, then the path parameters, then the query string into
// out, a pointer to a struct. Fields are matched by their `json` tag and
// values are converted weakly ("30" fills an int). A later section overwrites
// fields set by an earlier one.
func Bind(c echo.Context, out any) error {
	s := sectionsFor(c)

	for _, section := range []Section{SectionBody, SectionParams, SectionQuery} {
		values, err := s.load(c, section)
		if err != nil {
			return err
		}

		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			WeaklyTypedInput: true,
			Result:           out,
		})
		if err != nil {
			return fmt.Errorf("create decoder: %w", err)
		}

		if err := decoder.Decode(values); err != nil {
			var fields []errs.FieldError
			for _, issue := range decodeIssues(err) {
				fields = append(fields, errs.FieldError{Field: FormatPath(issue.Path), Error: issue.Message})
			}
			return errs.NewBadRequestError(fmt.Sprintf("Invalid %s", section), false, nil, fields, nil)
		}
	}

	return nil
}

// valuesToMap turns url.Values into section form: one value stays a string,
// repeated values become []any.
func valuesToMap(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		switch len(vs) {
		case 0:
			out[k] = ""
		case 1:
			out[k] = vs[0]
		default:
			items := make([]any, len(vs))
			for i, v := range vs {
				items[i] = v
			}
			out[k] = items
		}
	}
	return out
}

func mapToValues(values map[string]any) url.Values {
	out := make(url.Values, len(values))
	for k, v := range values {
		if v == nil {
			continue
		}
		out[k] = toStrings(v)
	}
	return out
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, len(vv))
		for i, item := range vv {
			out[i] = stringify(item)
		}
		return out
	default:
		return []string{stringify(v)}
	}
}

// stringify renders a validated value for string-only transports
// (path parameters, query strings, forms).
func stringify(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case bool:
		return strconv.FormatBool(vv)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(vv), 'f', -1, 32)
	case int:
		return strconv.Itoa(vv)
	case int64:
		return strconv.FormatInt(vv, 10)
	case json.Number:
		return vv.String()
	case map[string]any, []any:
		data, err := json.Marshal(vv)
		if err != nil {
			return fmt.Sprint(vv)
		}
		return string(data)
	default:
		return fmt.Sprint(vv)
	}
}
