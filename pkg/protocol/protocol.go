package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Query represents the kind of reading requested from the sensor server
type Query int

const (
	AirTemperature Query = iota + 1
	RelativeHumidity
	WindSpeed
)

// Protocol constants
const (
	RedirectCommand = "CONNECT"
	AuthCommand     = "AUTH"
	LineTerminator  = "\n"
)

// ErrMalformedResponse is returned when a server response does not match the expected wire format
var ErrMalformedResponse = errors.New("malformed response")

// ErrUnknownQuery is returned for query values outside the supported set
var ErrUnknownQuery = errors.New("unknown query")

var queries = []Query{AirTemperature, RelativeHumidity, WindSpeed}

// Queries returns every supported query kind
func Queries() []Query {
	out := make([]Query, len(queries))
	copy(out, queries)
	return out
}

// Keyword returns the request keyword for the query
func (q Query) Keyword() string {
	switch q {
	case AirTemperature:
		return "AIR TEMPERATURE"
	case RelativeHumidity:
		return "RELATIVE HUMIDITY"
	case WindSpeed:
		return "WIND SPEED"
	default:
		return ""
	}
}

// Unit returns the unit suffix the sensor server uses for the query
func (q Query) Unit() string {
	switch q {
	case AirTemperature:
		return "F"
	case RelativeHumidity:
		return "%"
	case WindSpeed:
		return "MPH"
	default:
		return ""
	}
}

// Slug returns the command-line name of the query
func (q Query) Slug() string {
	return strings.ToLower(strings.ReplaceAll(q.Keyword(), " ", "-"))
}

func (q Query) String() string {
	if kw := q.Keyword(); kw != "" {
		return kw
	}
	return fmt.Sprintf("Query(%d)", int(q))
}

// Valid reports whether q is one of the supported query kinds
func (q Query) Valid() bool {
	return q.Keyword() != ""
}

// ParseQuery resolves a slug ("wind-speed"), keyword ("WIND SPEED") or menu number ("3") to a query
func ParseQuery(s string) (Query, error) {
	s = strings.TrimSpace(s)
	for _, q := range queries {
		if s == strconv.Itoa(int(q)) || strings.EqualFold(s, q.Slug()) || strings.EqualFold(s, q.Keyword()) {
			return q, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownQuery, s)
}

// QueryForUnit returns the query kind whose readings carry the given unit suffix
func QueryForUnit(unit string) (Query, error) {
	for _, q := range queries {
		if q.Unit() == unit {
			return q, nil
		}
	}
	return 0, fmt.Errorf("%w: no query for unit %q", ErrUnknownQuery, unit)
}

// Redirect is the directory server's answer naming the sensor server
type Redirect struct {
	Host       string
	Port       int
	Credential string
}

// Reading is a single measurement returned by the sensor server
type Reading struct {
	Timestamp int64
	Value     int
	Unit      string
}

// Time returns the reading timestamp as a time.Time
func (r Reading) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// Describe renders the reading the way the interactive client prints it
func (r Reading) Describe(q Query) string {
	return fmt.Sprintf("The Last %s reading was %d %s, taken at %s",
		q.Keyword(), r.Value, r.Unit, r.Time().Format(time.ANSIC))
}

// EncodeAuth renders an authentication line
// Format: AUTH <credential>\n
func EncodeAuth(credential string) []byte {
	return []byte(AuthCommand + " " + credential + LineTerminator)
}

// EncodeQuery renders the request line for a query.
// In legacy mode only AIR TEMPERATURE is newline-terminated, matching the deployed client byte for byte.
func EncodeQuery(q Query, legacy bool) ([]byte, error) {
	kw := q.Keyword()
	if kw == "" {
		return nil, fmt.Errorf("%w: %d", ErrUnknownQuery, int(q))
	}
	if legacy && q != AirTemperature {
		return []byte(kw), nil
	}
	return []byte(kw + LineTerminator), nil
}

// ParseRedirect decodes a redirect message
// Format: CONNECT <host> <port> <password>\n
func ParseRedirect(data []byte) (*Redirect, error) {
	fields := strings.Fields(firstLine(data))
	if len(fields) != 4 || fields[0] != RedirectCommand {
		return nil, fmt.Errorf("%w: redirect %q", ErrMalformedResponse, truncate(data))
	}

	port, err := strconv.Atoi(fields[2])
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: invalid sensor port %q", ErrMalformedResponse, fields[2])
	}

	return &Redirect{
		Host:       fields[1],
		Port:       port,
		Credential: fields[3],
	}, nil
}

// ParseReading decodes a reading message and checks its unit suffix
// Format: <unix-timestamp> <integer> <unit>\n
func ParseReading(data []byte, unit string) (*Reading, error) {
	fields := strings.Fields(firstLine(data))
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: reading %q", ErrMalformedResponse, truncate(data))
	}

	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timestamp %q", ErrMalformedResponse, fields[0])
	}

	value, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid value %q", ErrMalformedResponse, fields[1])
	}

	if fields[2] != unit {
		return nil, fmt.Errorf("%w: unit %q, want %q", ErrMalformedResponse, fields[2], unit)
	}

	return &Reading{
		Timestamp: ts,
		Value:     value,
		Unit:      unit,
	}, nil
}

// firstLine returns the text up to the first newline, ignoring NUL padding
func firstLine(data []byte) string {
	s := strings.TrimRight(string(data), "\x00")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, "\r")
}

func truncate(data []byte) string {
	const max = 64
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
