package api

const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>EGLC Companion API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    .events-link {
      position: fixed; top: 12px; right: 16px; z-index: 9999;
      background: #161b22; border: 1px solid #30363d; border-radius: 6px;
      color: #58a6ff; font: 500 12px -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      padding: 5px 12px; text-decoration: none;
    }
  </style>
</head>
<body style="height: 100vh; margin: 0; position: relative;">
  <a class="events-link" href="/docs/events">Event stream</a>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`

// eventsDocsHTML documents the push channel, which OpenAPI cannot describe.
const eventsDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <title>EGLC Companion Events</title>
  <style>
    body { background: #0d1117; color: #c9d1d9; font: 14px/1.5 -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; max-width: 760px; margin: 32px auto; padding: 0 16px; }
    code, pre { background: #161b22; border-radius: 4px; padding: 2px 6px; }
    pre { padding: 12px; overflow-x: auto; }
    td { padding: 4px 12px 4px 0; vertical-align: top; }
    a { color: #58a6ff; }
  </style>
</head>
<body>
  <p><a href="/docs">&larr; REST reference</a></p>
  <h1>Event stream</h1>
  <p>Every state change the companion makes is pushed to connected clients. Two transports carry the same events:</p>
  <ul>
    <li><code>GET /api/v1/events</code> Server-Sent Events; the SSE event name is the topic.</li>
    <li><code>GET /api/v1/events/ws</code> WebSocket; one JSON text frame per event.</li>
  </ul>
  <p>Both accept <code>?topics=theme,locale</code> to receive a subset. Without it every topic is sent.</p>
  <h2>Envelope</h2>
  <pre>{"id": "uuid", "topic": "theme", "payload": {...}, "at": "2024-03-09T23:00:00Z"}</pre>
  <h2>Topics</h2>
  <table>
    <tr><td><code>token</code></td><td>Stored auth token changed (payload carries presence only).</td></tr>
    <tr><td><code>session</code></td><td>Session state: ANONYMOUS, CHECKING or AUTHENTICATED, with user and expiry.</td></tr>
    <tr><td><code>theme</code></td><td>Theme applied, locally or from another process.</td></tr>
    <tr><td><code>locale</code></td><td>Language switched.</td></tr>
    <tr><td><code>watchlist</code></td><td>Per-asset watchlist or the watchlist-only flag changed.</td></tr>
    <tr><td><code>etl</code></td><td>ETL view summary (loading, error, download flags); fetch <code>GET /api/v1/etl</code> for tables.</td></tr>
    <tr><td><code>report</code></td><td>Report view summary; fetch <code>GET /api/v1/report</code> for tables.</td></tr>
  </table>
  <p><code>eventtail</code> follows the WebSocket stream from a terminal and can record it to JSONL.</p>
</body>
</html>`
