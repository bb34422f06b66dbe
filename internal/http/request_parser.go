// Package http provides HTTP server and handler implementations.
//
// This file implements parsing and validation of path and query parameters.

package http

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"arcreceipts/internal/core"
	"arcreceipts/internal/services"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidReceiptID is returned for a receipt id that is not a positive integer.
var ErrInvalidReceiptID = errors.New("invalid receipt id")

// ParseWalletAddress validates the {address} path segment.
func ParseWalletAddress(s string) (common.Address, error) {
	addr, err := core.ParseAddress(s)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", core.ErrInvalidAddress)
	}
	return addr, nil
}

// ParseReceiptID validates the {id} path segment.
func ParseReceiptID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReceiptID, s)
	}
	return id, nil
}

// ParsePage reads a 1-based page number; missing or invalid values mean 1.
func ParsePage(query url.Values) int {
	if v := strings.TrimSpace(query.Get("page")); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
	}
	return 1
}

// ParseHistoryQuery builds a history query for subject from mode, from, to
// and page parameters.
func ParseHistoryQuery(subject common.Address, query url.Values) (services.HistoryQuery, error) {
	mode, err := core.ParseHistoryMode(query.Get("mode"))
	if err != nil {
		return services.HistoryQuery{}, err
	}
	from, err := core.ParseDate(query.Get("from"))
	if err != nil {
		return services.HistoryQuery{}, fmt.Errorf("from: %w", err)
	}
	to, err := core.ParseDate(query.Get("to"))
	if err != nil {
		return services.HistoryQuery{}, fmt.Errorf("to: %w", err)
	}
	q := services.HistoryQuery{
		Filter: core.HistoryFilter{Subject: subject, Mode: mode, From: from, To: to},
		Page:   ParsePage(query),
	}
	if err := q.Filter.Validate(); err != nil {
		return services.HistoryQuery{}, err
	}
	return q, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
