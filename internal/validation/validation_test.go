package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) Input {
	t.Helper()
	in, err := Decode(strings.NewReader(body))
	require.NoError(t, err)
	return in
}

func TestDecode(t *testing.T) {
	in, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, in)

	_, err = Decode(strings.NewReader("[1,2]"))
	assert.ErrorIs(t, err, ErrMalformedBody)

	_, err = Decode(strings.NewReader("{"))
	assert.ErrorIs(t, err, ErrMalformedBody)
}

func TestRequiredAndBlank(t *testing.T) {
	v := New(decode(t, `{"make": "  ", "model": null}`))
	assert.Nil(t, v.String("make", Required))
	assert.Nil(t, v.String("model", Required))
	assert.Nil(t, v.String("notes"))

	assert.Equal(t, Errors{
		"make":  {"The make field is required."},
		"model": {"The model field is required."},
	}, v.Errors())
}

func TestStringRules(t *testing.T) {
	v := New(decode(t, `{"phone": "123456789012345678901", "status": "parked", "email": "not-an-email", "website": "ftp://x", "name": "Bus 1"}`))

	assert.Nil(t, v.String("phone", Max(20)))
	assert.Nil(t, v.String("status", In("active", "maintenance", "inactive")))
	assert.Nil(t, v.String("email", Email))
	assert.Nil(t, v.String("website", URL))
	name := v.String("name", Required, Max(255))
	require.NotNil(t, name)
	assert.Equal(t, "Bus 1", *name)

	errs := v.Errors()
	assert.Equal(t, []string{"The phone field must not be greater than 20 characters."}, errs["phone"])
	assert.Equal(t, []string{"The selected status is invalid."}, errs["status"])
	assert.Equal(t, []string{"The email field must be a valid email address."}, errs["email"])
	assert.Equal(t, []string{"The website field must be a valid URL."}, errs["website"])
	assert.NotContains(t, errs, "name")
}

func TestNumbers(t *testing.T) {
	v := New(decode(t, `{"gallons": "0.001", "cost": 45.5, "year": 2020.5, "vehicle_id": "3", "odometer_reading": "abc"}`))

	assert.Nil(t, v.Float("gallons", Required, Min(0.01)))
	cost := v.Float("cost", Required, Min(0))
	require.NotNil(t, cost)
	assert.Equal(t, 45.5, *cost)
	assert.Nil(t, v.Int("year"))
	id := v.Int("vehicle_id", Required)
	require.NotNil(t, id)
	assert.Equal(t, int64(3), *id)
	assert.Nil(t, v.Float("odometer_reading", Required))

	errs := v.Errors()
	assert.Equal(t, []string{"The gallons field must be at least 0.01."}, errs["gallons"])
	assert.Equal(t, []string{"The year field must be an integer."}, errs["year"])
	assert.Equal(t, []string{"The odometer reading field must be a number."}, errs["odometer_reading"])
}

func TestDates(t *testing.T) {
	v := New(decode(t, `{"fillup_date": "2024-03-05", "start_time": "2024-03-05 10:00", "trip_date": "yesterday", "end_time": "2024-03-05T18:30"}`))

	d := v.Date("fillup_date", Required)
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), *d)

	assert.Nil(t, v.DateFormat("start_time", "2006-01-02T15:04", `Y-m-d\TH:i`, Required))
	assert.Nil(t, v.Date("trip_date", Required))
	end := v.DateFormat("end_time", "2006-01-02T15:04", `Y-m-d\TH:i`)
	require.NotNil(t, end)
	assert.Equal(t, 18, end.Hour())

	errs := v.Errors()
	assert.Equal(t, []string{`The start time field must match the format Y-m-d\TH:i.`}, errs["start_time"])
	assert.Equal(t, []string{"The trip date field must be a valid date."}, errs["trip_date"])
}

func TestConfirmed(t *testing.T) {
	v := New(decode(t, `{"new_password": "longenough", "new_password_confirmation": "different"}`))
	assert.Nil(t, v.String("new_password", Required, Min(8), Confirmed))
	assert.Equal(t, []string{"The new password field confirmation does not match."}, v.Errors()["new_password"])

	v = New(decode(t, `{"new_password": "longenough", "new_password_confirmation": "longenough"}`))
	assert.NotNil(t, v.String("new_password", Required, Min(8), Confirmed))
	assert.False(t, v.Fails())
}
