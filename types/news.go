package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of an article date.
const DateLayout = "2006-01-02"

// Article represents a news post shown on the storefront.
type Article struct {
	// ID is the unique identifier of the article, assigned on creation.
	ID int `json:"id" db:"id"`

	// Title is the headline of the article.
	Title string `json:"title" db:"title"`

	// Location is where the reported event took place.
	Location string `json:"location" db:"location"`

	// Date is the publication date. Listings are sorted by it, newest first.
	Date Date `json:"date" db:"date"`

	// Content is the article body.
	Content string `json:"content" db:"content"`

	// Category is a free-form section label (e.g. "events", "offers").
	Category string `json:"category" db:"category"`

	// Likes counts distinct users who liked the article. It only changes
	// through the like operation.
	Likes int `json:"likes" db:"likes"`

	// ImageKey is the object storage key of the article image, if any.
	ImageKey string `json:"image_key,omitempty" db:"image_key"`
}

// LikeResult is the outcome of a like attempt.
type LikeResult struct {
	// Liked is false when the user had already liked the article.
	Liked bool `json:"liked"`

	// Likes is the like count after the attempt.
	Likes int `json:"likes"`
}

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts "YYYY-MM-DD" or an RFC 3339 timestamp.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Date{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(DateLayout, value); err == nil {
		return NewDate(t), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", value)
	}
	return NewDate(t), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = NewDate(v)
		return nil
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Format(DateLayout), nil
}
