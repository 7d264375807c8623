// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package helper

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
)

type Configuration struct {
	PortPollingInterval time.Duration
	PortPollingTimeout  time.Duration
}

var Config = Configuration{
	PortPollingInterval: 2 * time.Second,
	PortPollingTimeout:  100 * time.Second,
}

// WaitFor polls the condition until it reports done, fails or the port
// polling timeout expires.
func WaitFor(ctx context.Context, what string, condition wait.ConditionWithContextFunc) error {
	if err := wait.PollUntilContextTimeout(ctx, Config.PortPollingInterval, Config.PortPollingTimeout, true, condition); err != nil {
		return fmt.Errorf("timeout waiting for %s: %w", what, err)
	}
	return nil
}

func PrettyFormat(v interface{}, log *logrus.Entry) string {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Errorf("Error marshalling JSON: %v", err)
	}
	return string(jsonBytes)
}

// ParseIndexList parses a list of port indices such as "0-3,8,10-11".
func ParseIndexList(s string) (sets.Set[int], error) {
	out := sets.New[int]()
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid index %q: %w", part, err)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid index range %q: %w", part, err)
			}
		}
		if end < start {
			return nil, fmt.Errorf("invalid index range %q", part)
		}
		for i := start; i <= end; i++ {
			out.Insert(i)
		}
	}
	return out, nil
}
