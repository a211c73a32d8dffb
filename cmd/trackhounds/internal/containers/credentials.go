// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package containers

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// Secret holds a credential sealed in an encrypted memguard enclave.
//
// # Description
//
// The plaintext exists in locked memory only for the duration of a Use
// callback. The zero value and a nil *Secret both hold the empty string.
//
// # Example
//
//	pw := containers.NewSecret(cfg.Containers.Database.RootPassword)
//	_ = pw.Use(func(v string) error {
//	    env = append(env, "MYSQL_ROOT_PASSWORD="+v)
//	    return nil
//	})
//
// # Limitations
//
//   - Anything fn derives from the value (such as an env entry) is an
//     ordinary heap copy.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret seals value. An empty value yields an empty Secret.
func NewSecret(value string) *Secret {
	if value == "" {
		return &Secret{}
	}
	// NewEnclave wipes its argument.
	return &Secret{enclave: memguard.NewEnclave([]byte(value))}
}

// Empty reports whether the secret holds no value.
func (s *Secret) Empty() bool {
	return s == nil || s.enclave == nil
}

// Use opens the enclave, passes the plaintext to fn and destroys the
// opened buffer when fn returns. fn must not retain value.
func (s *Secret) Use(fn func(value string) error) error {
	if s.Empty() {
		return fn("")
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("open secret: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// PurgeSecrets wipes every memguard allocation. Call once at exit.
func PurgeSecrets() {
	memguard.Purge()
}
