package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/FranksOps/vetter/internal/model"
)

// ErrNoCompanyScript means the firmographic page had neither known state script.
var ErrNoCompanyScript = model.WithClass(model.ErrParse, errors.New("no company data script found"))

// NotFoundError reports that a search returned no usable page on Site.
type NotFoundError struct {
	Site string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s page found for %s", e.Site, e.Key)
}

func (e *NotFoundError) Unwrap() error { return model.ErrNotFound }

// ScrapeError wraps a failed firmographic fetch or parse.
type ScrapeError struct {
	Err error
}

func (e *ScrapeError) Error() string { return "scraping failed: " + e.Err.Error() }

func (e *ScrapeError) Unwrap() error { return e.Err }

// recordMessage renders err the way it is stored in an error record.
func recordMessage(err error) string {
	var (
		nf *NotFoundError
		se *ScrapeError
	)
	switch {
	case errors.As(err, &se):
		return "Scraping failed: " + recordMessage(se.Err)
	case errors.As(err, &nf):
		return fmt.Sprintf("No %s page found for %s.", nf.Site, nf.Key)
	case errors.Is(err, ErrNoCompanyScript):
		return "No company data script found."
	}
	return err.Error()
}

// flexNumber accepts JSON numbers and numeric strings.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexNumber(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot unmarshal %s into a number", string(data))
	}
	parsed, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return err
	}
	*f = flexNumber(parsed)
	return nil
}
