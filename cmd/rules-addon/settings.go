package main

import (
	"net/http"

	"github.com/clockify/addon-sdk-go/pkg/addon"
)

// settingsHandler serves the settings tab embedded in the Clockify UI. The
// page is self-contained and talks to the rules API with plain fetch calls;
// Clockify passes the workspace through the iframe query string.
func (app *app) settingsHandler(req *addon.Request) *addon.Response {
	if req.HTTP.Method != http.MethodGet {
		return addon.Errorf(http.StatusMethodNotAllowed, "method %s not allowed", req.HTTP.Method)
	}
	return &addon.Response{
		Status:      http.StatusOK,
		Body:        []byte(settingsPage),
		ContentType: "text/html; charset=utf-8",
	}
}

const settingsPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Automation Rules</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 1.5rem; color: #333; }
  h1 { font-size: 1.2rem; }
  table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
  th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #ddd; font-size: 0.85rem; }
  .disabled { color: #999; }
  .error { color: #b00; }
  textarea { width: 100%; height: 14rem; font-family: monospace; font-size: 0.8rem; }
  button { margin-top: 0.5rem; }
</style>
</head>
<body>
<h1>Automation Rules</h1>
<div id="status"></div>
<table id="rules">
  <thead><tr><th>Name</th><th>Event</th><th>Priority</th><th>Enabled</th><th></th></tr></thead>
  <tbody></tbody>
</table>
<h2>Add rule</h2>
<textarea id="doc" placeholder='{"name": "...", "event": "NEW_TIME_ENTRY", "conditions": [], "actions": []}'></textarea>
<button id="create">Create</button>
<script>
(function () {
  var workspace = new URLSearchParams(window.location.search).get("workspace") || "";
  var api = "api/rules?workspace=" + encodeURIComponent(workspace);
  var status = document.getElementById("status");

  function fail(msg) { status.textContent = msg; status.className = "error"; }

  function render(rules) {
    var tbody = document.querySelector("#rules tbody");
    tbody.innerHTML = "";
    rules.forEach(function (r) {
      var tr = document.createElement("tr");
      if (!r.enabled) tr.className = "disabled";
      tr.innerHTML = "<td></td><td></td><td></td><td></td><td></td>";
      tr.children[0].textContent = r.name;
      tr.children[1].textContent = r.event;
      tr.children[2].textContent = r.priority;
      tr.children[3].textContent = r.enabled ? "yes" : "no";
      var del = document.createElement("button");
      del.textContent = "Delete";
      del.onclick = function () {
        fetch("api/rules/" + r.id + "?workspace=" + encodeURIComponent(workspace), { method: "DELETE" })
          .then(load, function () { fail("delete failed"); });
      };
      tr.children[4].appendChild(del);
      tbody.appendChild(tr);
    });
  }

  function load() {
    fetch(api)
      .then(function (res) { return res.json(); })
      .then(function (body) { status.textContent = ""; render(body.rules || []); },
            function () { fail("could not load rules"); });
  }

  document.getElementById("create").onclick = function () {
    fetch(api, { method: "POST", body: document.getElementById("doc").value })
      .then(function (res) {
        if (!res.ok) { return res.json().then(function (b) { fail(b.error || "create failed"); }); }
        document.getElementById("doc").value = "";
        load();
      }, function () { fail("create failed"); });
  };

  load();
})();
</script>
</body>
</html>
`
