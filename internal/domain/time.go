package domain

import "time"

// TimestampLayout is fixed width so stored timestamps sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// DateLayout is used for calendar dates on stage records.
const DateLayout = "2006-01-02"

func Timestamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }

func Date(t time.Time) string { return t.UTC().Format(DateLayout) }
