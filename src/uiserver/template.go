package uiserver

// terminalPageTemplate is formatted with (restBaseURL, wsBaseURL,
// sessionID). An empty sessionID tells the client to create one via
// POST {restBaseURL}/api/sessions before opening the WebSocket.
const terminalPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Terma</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@xterm/xterm@5.5.0/css/xterm.css">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        html, body { height: 100%%; width: 100%%; overflow: hidden; background: #1a1b26; }
        #terminal { height: calc(100%% - 40px); width: 100%%; }
        .xterm { height: 100%%; padding: 8px; }
        #statusbar {
            height: 40px;
            display: flex;
            align-items: center;
            justify-content: space-between;
            padding: 0 12px;
            font-family: monospace;
            font-size: 12px;
            color: #c0caf5;
            background: #16161e;
        }
        #assist-btn {
            background: #7aa2f7;
            border: none;
            border-radius: 4px;
            color: #1a1b26;
            padding: 4px 10px;
            font-family: monospace;
            cursor: pointer;
        }
        #assist-btn:disabled { opacity: 0.5; cursor: default; }
    </style>
</head>
<body>
    <div id="statusbar">
        <span id="connection-status">connecting…</span>
        <button id="assist-btn" title="Explain the last command (llm_assist)">? explain</button>
    </div>
    <div id="terminal"></div>

    <script src="https://cdn.jsdelivr.net/npm/@xterm/xterm@5.5.0/lib/xterm.min.js"></script>
    <script src="https://cdn.jsdelivr.net/npm/@xterm/addon-fit@0.10.0/lib/addon-fit.min.js"></script>
    <script>
        const restBaseURL = %q;
        const wsBaseURL = %q;
        let sessionID = %q;

        const statusEl = document.getElementById('connection-status');
        const assistBtn = document.getElementById('assist-btn');

        function setStatus(text) { statusEl.textContent = text; }

        const term = new Terminal({
            cursorBlink: true,
            fontSize: 14,
            fontFamily: 'Menlo, Monaco, "Courier New", monospace',
            theme: { background: '#1a1b26', foreground: '#c0caf5' },
        });
        const fitAddon = new FitAddon.FitAddon();
        term.loadAddon(fitAddon);
        term.open(document.getElementById('terminal'));
        fitAddon.fit();

        let ws = null;
        let lastCommand = '';

        function connect() {
            const wsURL = wsBaseURL.replace(/^http(s?):/, 'ws$1:');
            ws = new WebSocket(wsURL + '/ws/' + sessionID);

            ws.onopen = function () {
                setStatus('connected: ' + sessionID);
                sendResize();
            };
            ws.onmessage = function (event) {
                const msg = JSON.parse(event.data);
                if (msg.type === 'output') {
                    term.write(msg.data);
                } else if (msg.type === 'llm_response') {
                    if (msg.loading) {
                        setStatus('assist: thinking…');
                    } else if (msg.error) {
                        setStatus('assist error: ' + msg.content);
                    } else {
                        term.write('\r\n\x1b[36m[assist] ' + msg.content + '\x1b[0m\r\n');
                        setStatus('connected: ' + sessionID);
                    }
                }
            };
            ws.onclose = function () {
                setStatus('disconnected');
                setTimeout(connect, 1500);
            };
        }

        function sendResize() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: 'resize', rows: term.rows, cols: term.cols }));
            }
        }

        let inputBuffer = '';
        term.onData(function (data) {
            if (data === '\r') {
                lastCommand = inputBuffer;
                inputBuffer = '';
            } else if (data === '') {
                inputBuffer = inputBuffer.slice(0, -1);
            } else if (data.length === 1 && data >= ' ') {
                inputBuffer += data;
            }
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: 'input', data: data }));
            }
        });

        assistBtn.onclick = function () {
            if (!lastCommand || !ws || ws.readyState !== WebSocket.OPEN) return;
            ws.send(JSON.stringify({ type: 'llm_assist', command: '?' + lastCommand }));
        };

        window.addEventListener('resize', function () {
            fitAddon.fit();
            sendResize();
        });

        function start() {
            if (sessionID) {
                connect();
                return;
            }
            fetch(restBaseURL + '/api/sessions', { method: 'POST', headers: { 'Content-Type': 'application/json' }, body: '{}' })
                .then(function (r) { return r.json(); })
                .then(function (body) {
                    sessionID = body.session_id;
                    history.replaceState(null, '', '/s/' + sessionID);
                    connect();
                })
                .catch(function (err) {
                    setStatus('failed to create session: ' + err);
                });
        }

        start();
    </script>
</body>
</html>`
