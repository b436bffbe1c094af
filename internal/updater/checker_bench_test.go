// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package updater

import (
	"testing"
)

// BenchmarkCheckForUpdates benchmarks the update checker
// The check runs synchronously, including any network request it makes
func BenchmarkCheckForUpdates(b *testing.B) {
	checker := NewChecker("v1.0.0")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		checker.CheckForUpdates()
	}
}

// BenchmarkVersionComparison benchmarks version comparison
func BenchmarkVersionComparison(b *testing.B) {
	checker := NewChecker("v1.0.0")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = checker.compareVersions("v1.0.0", "v2.0.0")
	}
}

// BenchmarkCacheCheck benchmarks cache checking
func BenchmarkCacheCheck(b *testing.B) {
	checker := NewChecker("v1.0.0")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = checker.shouldCheck()
	}
}

// BenchmarkNewChecker benchmarks checker creation
func BenchmarkNewChecker(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = NewChecker("v1.0.0")
	}
}
