package web

import (
	"html/template"
	"io"
	"strings"

	"github.com/sweeney/lamp-relay/internal/logic"
)

// wifiBars renders signal strength as five bars; 0 means no signal info.
func wifiBars(rssi int) string {
	if rssi == 0 {
		return "-----"
	}

	bars := 0
	switch {
	case rssi >= -55:
		bars = 5
	case rssi >= -60:
		bars = 4
	case rssi >= -67:
		bars = 3
	case rssi >= -75:
		bars = 2
	case rssi >= -85:
		bars = 1
	}
	return strings.Repeat("▮", bars) + strings.Repeat("▯", 5-bars)
}

type pageData struct {
	Hostname string
	Mode     string
	SSID     string
	Bars     string
	IP       string
	MAC      string
	On       bool
}

func (s *Server) pageData() pageData {
	snap := s.deps.Tracker.Snapshot()
	d := pageData{On: snap.State == logic.StateOn, Bars: wifiBars(0)}
	if s.deps.Network != nil {
		id := s.deps.Network.Identity()
		d.Hostname = id.Hostname
		d.Mode = id.Mode.String()
		d.SSID = id.SSID
		d.IP = id.Addr
		d.MAC = id.MAC
		d.Bars = wifiBars(s.deps.Network.RSSI())
	}
	return d
}

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

func renderIndex(w io.Writer, d pageData) {
	indexTmpl.Execute(w, d)
}

const indexHTML = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Lâmpada Lavanderia</title>
<style>
body { font-family: Arial, sans-serif; background: #f2f2f2; margin: 0; padding: 20px; display: flex; justify-content: center; }
.container { max-width: 600px; width: 100%; }
.card { background: #fff; padding: 18px; border-radius: 12px; box-shadow: 0 0 10px rgba(0,0,0,0.15); margin-bottom: 20px; }
h1 { text-align: center; font-size: 26px; }
.info-row { display: flex; justify-content: space-between; align-items: center; gap: 10px; flex-wrap: wrap; }
.info-list { line-height: 1.6em; font-size: 15px; }
.btn { padding: 10px 14px; border: none; border-radius: 8px; font-size: 14px; cursor: pointer; color: white; }
.btn-blue { background: #0077cc; }
.btn-red { background: #cc0000; }
#lampButton { width: 100%; padding: 14px; font-size: 18px; border-radius: 10px; font-weight: bold; border: none; }
.lamp-on { background: #00994d; color: white; }
.lamp-off { background: #cc0000; color: white; }
.modal { display: none; position: fixed; top: 0; left: 0; width: 100%; height: 100%; background: rgba(0,0,0,0.6); justify-content: center; align-items: center; }
.modal > div { background: white; padding: 20px; border-radius: 12px; width: 90%; max-width: 350px; text-align: center; }
#historico { font-size: 13px; line-height: 1.5em; max-height: 240px; overflow-y: auto; }
</style>
</head>
<body>
<div class="container">
<h1>💡 Lâmpada Lavanderia</h1>

<div class="card">
  <div class="info-row">
    <div class="info-list">
      <div>🛜 Wi-Fi: {{.Bars}}</div>
      <div>🌐 SSID: {{.SSID}}</div>
      <div>🔢 IP: {{.IP}}</div>
      <div>🔠 MAC: {{.MAC}}</div>
      {{if eq .Mode "access-point"}}<div>⚠️ Modo ponto de acesso</div>{{end}}
    </div>
    <div style="display:flex; flex-direction:column; gap:8px;">
      <button class="btn btn-blue" onclick="openWifi()">Trocar Wi-Fi</button>
      <button class="btn btn-blue" onclick="openUpload()">Atualizar</button>
      <button class="btn btn-red" onclick="reboot()">Reiniciar</button>
    </div>
  </div>
</div>

<div class="card">
  <h3 style="margin-top:0;">Controle da Lâmpada</h3>
  <button id="lampButton" class="{{if .On}}lamp-on{{else}}lamp-off{{end}}" onclick="toggleLamp()">{{if .On}}Ligada{{else}}Desligada{{end}}</button>
</div>

<div class="card">
  <h3 style="margin-top:0;">Histórico</h3>
  <div id="historico"></div>
</div>
</div>

<div id="modal" class="modal"><div>
  <h3>Atualizar Firmware</h3>
  <input type="file" id="file"><br><br>
  <button class="btn btn-blue" onclick="upload()">Enviar</button>
  <button class="btn btn-red" onclick="closeUpload()">Cancelar</button>
  <p id="status"></p>
</div></div>

<div id="wifiModal" class="modal"><div>
  <h3>Selecionar Rede Wi-Fi</h3>
  <div id="wifiList" style="max-height:250px; overflow-y:auto; border:1px solid #ddd; border-radius:8px; padding:10px; text-align:left;">Buscando redes...</div>
  <div id="wifiPassArea" style="display:none; margin-top:20px;">
    <h4 id="wifiChosen"></h4>
    <input id="wifiPass" type="password" placeholder="Senha" style="width:100%; padding:10px;"><br><br>
    <button class="btn btn-blue" onclick="saveWifi()">Salvar</button>
  </div>
  <p id="wifiMsg"></p>
  <button class="btn btn-red" onclick="closeWifi()">Fechar</button>
</div></div>

<script>
function showLamp(on, historico) {
  var b = document.getElementById("lampButton");
  b.textContent = on ? "Ligada" : "Desligada";
  b.className = on ? "lamp-on" : "lamp-off";
  if (historico !== undefined) document.getElementById("historico").innerHTML = historico;
}

function refreshLamp() {
  fetch("/status").then(r => r.json()).then(j => showLamp(j.on, j.historico));
}
setInterval(refreshLamp, 2000);
refreshLamp();

function toggleLamp() {
  fetch("/toggle", {method: "POST"}).then(refreshLamp);
}

function getWifiBars(rssi) {
  if (rssi === 0) return "-----";
  var bars = 0;
  if (rssi >= -55) bars = 5;
  else if (rssi >= -60) bars = 4;
  else if (rssi >= -67) bars = 3;
  else if (rssi >= -75) bars = 2;
  else if (rssi >= -85) bars = 1;
  return "▮".repeat(bars) + "▯".repeat(5 - bars);
}

function openUpload() { document.getElementById("modal").style.display = "flex"; }
function closeUpload() { document.getElementById("modal").style.display = "none"; }

function upload() {
  var file = document.getElementById("file").files[0];
  var st = document.getElementById("status");
  if (!file) { st.innerText = "Selecione um arquivo!"; return; }
  var form = new FormData();
  form.append("update", file);
  var xhr = new XMLHttpRequest();
  xhr.open("POST", "/update", true);
  xhr.upload.onprogress = function(e) {
    if (e.lengthComputable) st.innerHTML = "📤 Enviando firmware...<br><b>" + Math.round(e.loaded / e.total * 100) + "%</b>";
  };
  xhr.onload = function() {
    st.innerText = xhr.responseText;
    setTimeout(() => location.reload(), 5000);
  };
  xhr.onerror = function() { st.innerText = "❌ Erro de comunicação!"; };
  xhr.send(form);
}

var selectedSSID = null;
function openWifi() { document.getElementById("wifiModal").style.display = "flex"; loadWiFiList(); }
function closeWifi() {
  document.getElementById("wifiModal").style.display = "none";
  selectedSSID = null;
  document.getElementById("wifiPassArea").style.display = "none";
  document.getElementById("wifiMsg").innerText = "";
}

function loadWiFiList() {
  fetch("/scan").then(r => r.json()).then(list => {
    var el = document.getElementById("wifiList");
    if (list.length === 0) { el.innerHTML = "<i>Buscando redes...</i>"; return; }
    el.innerHTML = "";
    list.forEach(w => {
      var d = document.createElement("div");
      d.style = "padding:8px; border-bottom:1px solid #eee; cursor:pointer;";
      d.textContent = w.ssid + " — " + getWifiBars(w.rssi);
      d.onclick = () => selectSSID(w.ssid);
      el.appendChild(d);
    });
  });
}

function selectSSID(ssid) {
  selectedSSID = ssid;
  document.getElementById("wifiChosen").innerText = "Rede selecionada: " + ssid;
  document.getElementById("wifiPassArea").style.display = "block";
}

function saveWifi() {
  if (!selectedSSID) return;
  var msg = document.getElementById("wifiMsg");
  msg.innerText = "Salvando...";
  var q = new URLSearchParams({ssid: selectedSSID, pass: document.getElementById("wifiPass").value});
  fetch("/setwifi?" + q).then(r => r.text()).then(t => {
    msg.innerText = t;
    setTimeout(() => location.reload(), 3000);
  });
}

setInterval(() => {
  if (document.getElementById("wifiModal").style.display === "flex") loadWiFiList();
}, 3000);

function reboot() {
  if (!confirm("Tem certeza que deseja reiniciar?")) return;
  fetch("/reboot").then(() => setTimeout(() => location.reload(), 4000));
}

(function live() {
  if (!window.WebSocket) return;
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onmessage = function(e) {
    try { showLamp(JSON.parse(e.data).status.on); } catch (err) {}
  };
  ws.onclose = function() { setTimeout(live, 5000); };
})();
</script>
</body>
</html>
`

const configHTML = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Configurar Wi-Fi</title>
<style>
body { font-family: Arial, sans-serif; padding: 20px; }
.wifi { padding: 14px; border: 1px solid #ccc; border-radius: 8px; margin-bottom: 10px; cursor: pointer; }
.wifi:hover { background: #f0f0f0; }
#list { margin-top: 20px; }
#passBox { display: none; margin-top: 20px; }
button { padding: 10px 20px; border-radius: 8px; border: none; color: white; background: #0077cc; cursor: pointer; }
</style>
</head>
<body>
<h2>Selecione a Rede Wi-Fi</h2>
<div id="list">Buscando redes...</div>
<div id="passBox">
  <h3 id="chosen"></h3>
  <input id="pass" placeholder="Senha" style="width:100%; padding:10px;">
  <br><br>
  <button onclick="save()">Salvar</button>
</div>
<script>
var selectedSSID = "";

function load() {
  fetch("/scan").then(r => r.json()).then(list => {
    var el = document.getElementById("list");
    if (list.length === 0) return;
    el.innerHTML = "";
    list.forEach(w => {
      var d = document.createElement("div");
      d.className = "wifi";
      d.textContent = w.ssid + " (" + w.rssi + " dBm)";
      d.onclick = () => pick(w.ssid);
      el.appendChild(d);
    });
  });
}

function pick(ssid) {
  selectedSSID = ssid;
  document.getElementById("chosen").innerText = "Rede selecionada: " + ssid;
  document.getElementById("passBox").style.display = "block";
}

function save() {
  var q = new URLSearchParams({ssid: selectedSSID, pass: document.getElementById("pass").value});
  fetch("/setwifi?" + q).then(r => r.text()).then(t => alert(t));
}

setInterval(load, 3000);
load();
</script>
</body>
</html>
`
