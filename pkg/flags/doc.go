// Package flags keeps feature flag values next to the rest of the persisted
// SDK state.
//
// Flags are stored in the persistence blob under "$enabled_feature_flags"
// (flag key to true or a variant string) and "$feature_flag_payloads". They
// can be seeded from bootstrap data, typically rendered by the server, and
// refreshed with Reload, which posts the current identity to the /flags/
// endpoint through the retry queue.
//
//	f := flags.New(p, flags.WithTransport(retries, "https://us.i.posthog.com", apiKey),
//		flags.WithIdentity(func() (string, string) { return distinctID, deviceID }))
//	f.Bootstrap(map[string]any{"new-onboarding": true, "pricing": "variant-b"}, nil)
//	if f.IsEnabled("new-onboarding") {
//		// ...
//	}
//
// Evaluating flags locally is out of scope: values are whatever the server
// or the bootstrap data said.
package flags
