package main

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

func TestParsearInstruccion(t *testing.T) {
	casos := []struct {
		linea     string
		operacion string
		params    int
		ok        bool
	}{
		{"INIT 1 prog.elf", "INIT", 2, true},
		{"init_anon 2 0x400000 4096", "INIT_ANON", 3, true},
		{"INIT_ANON 2 0x400000 4096 0x10000000 8192", "INIT_ANON", 5, true},
		{"INIT_ANON 2 0x400000 4096 0x10000000", "", 0, false},
		{"WRITE 1 0x10000000 hola mundo", "WRITE", 4, true},
		{"WRITE 1 0x10000000", "", 0, false},
		{"READ 1 0x10000000 4", "READ", 3, true},
		{"KFREE", "KFREE", 0, true},
		{"STATS extra", "", 0, false},
		{"JUMP 4", "", 0, false},
	}
	for _, tc := range casos {
		t.Run(tc.linea, func(t *testing.T) {
			inst, err := parsearInstruccion(tc.linea, 1)
			if !tc.ok {
				if !errors.Is(err, ErrInstruccionInvalida) {
					t.Fatalf("err = %v, want ErrInstruccionInvalida", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if inst.Operacion != tc.operacion || len(inst.Parametros) != tc.params {
				t.Errorf("got %s con %d parámetros", inst.Operacion, len(inst.Parametros))
			}
		})
	}
}

func TestParsearTraza(t *testing.T) {
	traza := `# proceso de prueba
INIT_ANON 1 0x400000 4096 0x10000000 8192

ACTIVAR 1   # cambio de contexto
WRITE 1 0x10000000 hola
READ 1 0x10000000 4
EXIT 1
`
	instrucciones, err := parsearTraza(strings.NewReader(traza))
	if err != nil {
		t.Fatal(err)
	}
	if len(instrucciones) != 5 {
		t.Fatalf("instrucciones = %d, want 5", len(instrucciones))
	}
	if instrucciones[1].Operacion != "ACTIVAR" || instrucciones[1].Linea != 4 {
		t.Errorf("segunda instrucción = %+v", instrucciones[1])
	}

	if _, err := parsearTraza(strings.NewReader("READ 1\n")); err == nil {
		t.Errorf("una traza inválida debería fallar")
	}
}

func TestParsearNumero(t *testing.T) {
	casos := map[string]uint32{
		"4096":       4096,
		"0x10000000": 0x10000000,
		"0o17":       15,
	}
	for entrada, want := range casos {
		got, err := parsearNumero(entrada)
		if err != nil || got != want {
			t.Errorf("parsearNumero(%q) = %d, %v; want %d", entrada, got, err, want)
		}
	}
	for _, entrada := range []string{"-1", "0x100000000", "hola"} {
		if _, err := parsearNumero(entrada); err == nil {
			t.Errorf("parsearNumero(%q) debería fallar", entrada)
		}
	}
}

// memoriaFalsa registra los mensajes recibidos y contesta con respuestas fijas
type memoriaFalsa struct {
	mu         sync.Mutex
	recibidos  []utils.Mensaje
	respuestas map[int]map[string]interface{}
}

func (m *memoriaFalsa) responder(tipo int, respuesta map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respuestas[tipo] = respuesta
}

func (m *memoriaFalsa) mensajes() []utils.Mensaje {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]utils.Mensaje(nil), m.recibidos...)
}

func prepararMemoriaFalsa(t *testing.T) (*memoriaFalsa, *CPU) {
	t.Helper()

	m := &memoriaFalsa{respuestas: map[int]map[string]interface{}{
		utils.MensajeInicializarProceso: {"status": "OK", "pila": float64(0x80000000)},
		utils.MensajeLeer:               {"status": "OK", "datos": "aG9sYQ=="},
		utils.MensajeAsignarKernel:      {"status": "OK", "direccion": float64(0x80005000)},
		utils.MensajeEstadisticas:       {"status": "OK", "estadisticas": map[string]interface{}{"TLB Faults": 1}},
	}}

	modulo := utils.NuevoModulo("MemoriaFalsa", "")
	for _, tipo := range []int{
		utils.MensajeInicializarProceso, utils.MensajeFinalizarProceso, utils.MensajeActivarProceso,
		utils.MensajeLeer, utils.MensajeEscribir, utils.MensajeFalloPagina, utils.MensajeEstado,
		utils.MensajeEstadisticas, utils.MensajeMemoryDump, utils.MensajeAsignarKernel, utils.MensajeLiberarKernel,
	} {
		tipo := tipo
		modulo.RegistrarHandler(tipo, "default", func(msg *utils.Mensaje) (interface{}, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.recibidos = append(m.recibidos, *msg)
			if r, ok := m.respuestas[tipo]; ok {
				return r, nil
			}
			return map[string]interface{}{"status": "OK"}, nil
		})
	}

	srv := httptest.NewServer(modulo.PrepararServidor("127.0.0.1", 0).Handler())
	t.Cleanup(srv.Close)
	return m, NuevaCPU(utils.NewHTTPClientURL(srv.URL, "CPU"), 0)
}

func trazaDe(t *testing.T, texto string) []Instruccion {
	t.Helper()
	instrucciones, err := parsearTraza(strings.NewReader(texto))
	if err != nil {
		t.Fatal(err)
	}
	return instrucciones
}

func TestEjecutarTraza(t *testing.T) {
	m, cpu := prepararMemoriaFalsa(t)

	res, err := cpu.ejecutarTraza(trazaDe(t, `
INIT_ANON 1 0x400000 4096 0x10000000 8192
WRITE 1 0x10000000 hola mundo
READ 1 0x10000000 4
KMALLOC 1
KFREE
STATS
EXIT 1
`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Ejecutadas != 7 || res.Errores != 0 {
		t.Fatalf("resultado = %+v", res)
	}

	recibidos := m.mensajes()
	tipos := []int{
		utils.MensajeInicializarProceso, utils.MensajeEscribir, utils.MensajeLeer,
		utils.MensajeAsignarKernel, utils.MensajeLiberarKernel, utils.MensajeEstadisticas, utils.MensajeFinalizarProceso,
	}
	if len(recibidos) != len(tipos) {
		t.Fatalf("mensajes = %d, want %d", len(recibidos), len(tipos))
	}
	for i, tipo := range tipos {
		if recibidos[i].Tipo != tipo {
			t.Errorf("mensaje %d de tipo %d, want %d", i, recibidos[i].Tipo, tipo)
		}
	}

	escritura := recibidos[1].Datos.(map[string]interface{})
	if escritura["valor"] != "hola mundo" || escritura["direccion"] != float64(0x10000000) {
		t.Errorf("escritura = %v", escritura)
	}
	regiones := recibidos[0].Datos.(map[string]interface{})["regiones"].([]interface{})
	if len(regiones) != 2 {
		t.Errorf("regiones = %v", regiones)
	}
	liberada := recibidos[4].Datos.(map[string]interface{})
	if liberada["direccion"] != float64(0x80005000) {
		t.Errorf("KFREE liberó %v", liberada["direccion"])
	}
	if len(cpu.kernel) != 0 {
		t.Errorf("quedaron páginas de kernel sin liberar: %v", cpu.kernel)
	}
}

func TestProcesoTerminadoSalteaSusInstrucciones(t *testing.T) {
	m, cpu := prepararMemoriaFalsa(t)
	m.responder(utils.MensajeEscribir, map[string]interface{}{
		"error":     "proceso 1 terminado: escritura sobre una página de solo lectura",
		"terminado": true,
		"pid":       float64(1),
	})

	res, err := cpu.ejecutarTraza(trazaDe(t, `
INIT_ANON 1 0x400000 4096
WRITE 1 0x400000 x
READ 1 0x400000 4
EXIT 1
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Terminados) != 1 || res.Terminados[0] != 1 || res.Errores != 0 {
		t.Fatalf("resultado = %+v", res)
	}
	// después de la escritura no se manda nada más del proceso 1
	if got := len(m.mensajes()); got != 2 {
		t.Errorf("mensajes = %d, want 2", got)
	}
}

func TestErroresNoCortanLaTraza(t *testing.T) {
	m, cpu := prepararMemoriaFalsa(t)
	m.responder(utils.MensajeFalloPagina, map[string]interface{}{"error": "dirección fuera de las regiones del proceso"})

	res, err := cpu.ejecutarTraza(trazaDe(t, `
FALLO 1 lectura 0x1000
KFREE
STATS
`))
	if err != nil {
		t.Fatal(err)
	}
	// el fallo inválido y el KFREE sin KMALLOC previo
	if res.Errores != 2 || res.Ejecutadas != 3 {
		t.Errorf("resultado = %+v", res)
	}
}

func TestModoPasoCortaLaTraza(t *testing.T) {
	m, cpu := prepararMemoriaFalsa(t)

	vistas := 0
	cpu.esperar = func(inst Instruccion) (bool, error) {
		vistas++
		return inst.Operacion != "STATS", nil
	}

	res, err := cpu.ejecutarTraza(trazaDe(t, "ACTIVAR 1\nSTATS\nEXIT 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cortada || res.Ejecutadas != 1 || vistas != 2 {
		t.Errorf("resultado = %+v, vistas = %d", res, vistas)
	}
	if got := len(m.mensajes()); got != 1 {
		t.Errorf("mensajes = %d, want 1", got)
	}
}
