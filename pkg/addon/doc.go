/*
Package addon is the core of the Clockify add-on SDK: a handler registry plus
an embedded HTTP server that routes marketplace traffic.

An addon serves four kinds of requests:

	┌────────────────────── ADDON SERVER ───────────────────────┐
	│                                                            │
	│  GET  /manifest.json   → manifest (baseUrl per request)    │
	│  POST /lifecycle/*     → lifecycle handler by path         │
	│  POST /lifecycle       → lifecycle handler by payload type │
	│  POST /webhook (etc.)  → webhook handler by event          │
	│  *    custom paths     → registered endpoints              │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

Webhook dispatch prefers the clockify-webhook-event-type header and falls
back to the payload "event" field. Unknown events and lifecycle types are
acknowledged with 200 so the marketplace does not retry them.

Registering a lifecycle or webhook handler keeps the manifest in sync: the
corresponding endpoint entry is created or moved automatically.

Typical wiring:

	m := manifest.New("my-addon", "My Addon").WithBaseURL(baseURL)
	a := addon.New(m)
	a.RegisterEndpoint("/manifest.json", addon.ManifestHandler(a))
	a.RegisterLifecycle(manifest.LifecycleInstalled, onInstalled)
	a.RegisterWebhook("TIMER_STOPPED", onTimerStopped)
	srv := addon.NewServer(a, addon.ServerConfig{Addr: ":8080"})
	srv.Start(ctx)
*/
package addon
