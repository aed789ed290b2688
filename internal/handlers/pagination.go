package handlers

import (
	"errors"
	"strconv"
)

const maxListLimit = 100

var errInvalidLimit = errors.New("invalid limit")

func parseLimitParam(limitStr string, defaultLimit int64) (int64, error) {
	if limitStr == "" {
		return defaultLimit, nil
	}

	l, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil || l < 1 {
		return 0, errInvalidLimit
	}
	if l > maxListLimit {
		l = maxListLimit
	}
	return l, nil
}
