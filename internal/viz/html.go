package viz

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// WriteHTML saves a single-file canvas visualization of the population. The
// grid colors are inlined as a JSON array of [r, g, b] triples and drawn by
// a small script, so the file opens offline.
func WriteHTML(path string, cells [][]byte, w, h, programSize int) error {
	scale := 800 / max(w, h)
	if scale < 1 {
		scale = 1
	}

	rows := ColorGrid(cells, w, h)
	data := make([][][3]int, h)
	for y, row := range rows {
		data[y] = make([][3]int, w)
		for x, c := range row {
			data[y][x] = [3]int{int(c.R), int(c.G), int(c.B)}
		}
	}
	gridJSON, err := json.Marshal(data)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html>
<head>
    <title>BFF Grid Visualization</title>
    <style>
        body { margin: 0; padding: 20px; background: #1a1a1a; color: #fff; font-family: monospace; }
        canvas { border: 1px solid #444; image-rendering: pixelated; image-rendering: crisp-edges; }
        .info { margin-bottom: 10px; }
    </style>
</head>
<body>
    <div class="info">
        <h2>BFF Grid Visualization</h2>
        <p>Grid Size: %dx%d (%d programs)</p>
        <p>Program Size: %d bytes</p>
    </div>
    <canvas id="canvas" width="%d" height="%d"></canvas>
    <script>
        const canvas = document.getElementById('canvas');
        const ctx = canvas.getContext('2d');
        const width = %d;
        const height = %d;
        const scale = %d;
        const gridData = %s;
        for (let y = 0; y < height; y++) {
            for (let x = 0; x < width; x++) {
                const [r, g, b] = gridData[y][x];
                ctx.fillStyle = `+"`rgb(${r},${g},${b})`"+`;
                ctx.fillRect(x * scale, y * scale, scale, scale);
            }
        }
    </script>
</body>
</html>
`, w, h, w*h, programSize, w*scale, h*scale, w, h, scale, gridJSON)

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
