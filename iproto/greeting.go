// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iproto

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tarantool-go/tntgo/tnterr"
)

// GreetingSize is the fixed length of Tarantool's welcome banner
// (spec §6): two 64-byte lines, the version identifier and a
// base64-encoded salt, padded with spaces/NULs.
const GreetingSize = 128

// Greeting is the parsed form of the server's welcome banner.
type Greeting struct {
	Version string
	Salt    []byte
}

// ParseGreeting parses exactly one 128-byte greeting banner. Parsing is
// one-shot and tolerant of trailing whitespace in both lines.
func ParseGreeting(raw [GreetingSize]byte) (Greeting, error) {
	versionLine := strings.TrimRight(string(raw[:64]), " \t\r\n\x00")
	saltLine := strings.TrimRight(string(raw[64:128]), " \t\r\n\x00")
	if versionLine == "" {
		return Greeting{}, fmt.Errorf("%w: empty version line", tnterr.ErrGreeting)
	}
	salt, err := base64.StdEncoding.DecodeString(saltLine)
	if err != nil {
		return Greeting{}, fmt.Errorf("%w: salt is not valid base64: %v", tnterr.ErrGreeting, err)
	}
	if len(salt) > 32 {
		salt = salt[:32]
	}
	return Greeting{Version: versionLine, Salt: salt}, nil
}
