package sl

import (
	"fmt"
	"log/slog"
)

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Secret returns a string with the first 5 characters of the input string
// used to hide sensitive information in logs
func Secret(key, value string) slog.Attr {
	r := "***"
	if len(value) > 5 {
		r = fmt.Sprintf("%s***", value[0:5])
	}
	if value == "" {
		r = "?"
	}
	return slog.Attr{
		Key:   key,
		Value: slog.StringValue(r),
	}
}

func Module(mod string) slog.Attr {
	return slog.Attr{
		Key:   "mod",
		Value: slog.StringValue(mod),
	}
}

// License logs a license code without making it redeemable from the logs.
func License(code string) slog.Attr {
	return Secret("license", code)
}

func Group(id int64) slog.Attr {
	return slog.Int64("group_id", id)
}

func Member(id int64) slog.Attr {
	return slog.Int64("member_id", id)
}

func Role(id int64) slog.Attr {
	return slog.Int64("role_id", id)
}
