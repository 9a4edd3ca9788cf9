// Package mocks provides centralized mock implementations for testing.
//
// Each mock exposes one function field per interface method. When a field is
// nil the mock falls back to its default values, so tests only spell out the
// behaviour they care about:
//
//	m := &mocks.MockMessenger{
//	    PublishFn: func(ctx context.Context, ns string, payload any) error {
//	        return messenger.ErrTransport
//	    },
//	}
//
// When adding a new mock to this package:
//  1. Create a new file named after the interface being mocked
//  2. Implement the mock struct with function fields for each interface method
//  3. Document any helper methods or special functionality
package mocks
