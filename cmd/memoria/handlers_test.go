package main

import (
	"encoding/base64"
	"fmt"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

const (
	baseTexto = 0x00400000
	baseDatos = 0x10000000
)

// prepararMemoria levanta el módulo sobre httptest con una RAM de marcos páginas
func prepararMemoria(t *testing.T, marcos int) *utils.HTTPClient {
	t.Helper()

	config = &MemoryConfig{
		MemorySize: marcos * direcciones.TamanioPagina,
		KernelSize: direcciones.TamanioPagina,
		SwapSize:   64 * direcciones.TamanioPagina,
		TLBEntries: 8,
		DumpPath:   t.TempDir(),
		ImagesPath: t.TempDir(),
	}
	var err error
	sistema, err = inicializarMemoria(config)
	if err != nil {
		t.Fatalf("inicializarMemoria: %v", err)
	}
	t.Cleanup(func() { sistema.Apagar() })

	modulo = utils.NuevoModulo("Memoria", "")
	registrarHandlers()

	srv := httptest.NewServer(modulo.PrepararServidor("127.0.0.1", 0).Handler())
	t.Cleanup(srv.Close)
	return utils.NewHTTPClientURL(srv.URL, "Test")
}

// crearProceso define texto de una página y datos de dos
func crearProceso(t *testing.T, c *utils.HTTPClient, pid int) {
	t.Helper()
	_, err := c.EnviarYVerificar(utils.MensajeInicializarProceso, "default", map[string]interface{}{
		"pid": pid,
		"regiones": []map[string]interface{}{
			{"vaddr": baseTexto, "tamanio": direcciones.TamanioPagina},
			{"vaddr": baseDatos, "tamanio": 2 * direcciones.TamanioPagina},
		},
	})
	if err != nil {
		t.Fatalf("inicializar proceso %d: %v", pid, err)
	}
}

func leer(t *testing.T, c *utils.HTTPClient, pid int, direccion uint32, tamanio int) []byte {
	t.Helper()
	respuesta, err := c.EnviarYVerificar(utils.MensajeLeer, "default", map[string]interface{}{
		"pid": pid, "direccion": direccion, "tamanio": tamanio,
	})
	if err != nil {
		t.Fatalf("leer %#x: %v", direccion, err)
	}
	codificados, ok := respuesta["datos"].(string)
	if !ok {
		t.Fatalf("respuesta sin datos: %v", respuesta)
	}
	datos, err := base64.StdEncoding.DecodeString(codificados)
	if err != nil {
		t.Fatalf("datos mal codificados: %v", err)
	}
	return datos
}

func TestHandshake(t *testing.T) {
	c := prepararMemoria(t, 32)

	respuesta, err := c.EnviarYVerificar(utils.MensajeHandshake, "handshake", map[string]interface{}{"nombre": "CPU"})
	if err != nil {
		t.Fatal(err)
	}
	if respuesta["tam_pagina"] != float64(direcciones.TamanioPagina) {
		t.Errorf("tam_pagina = %v", respuesta["tam_pagina"])
	}
	if respuesta["habilitada"] != true {
		t.Errorf("la VM debería estar habilitada: %v", respuesta)
	}
}

func TestEscribirYLeer(t *testing.T) {
	c := prepararMemoria(t, 32)
	crearProceso(t, c, 1)

	casos := []struct {
		nombre    string
		direccion uint32
		valor     string
	}{
		{"datos", baseDatos + 10, "hola"},
		{"cruza páginas", baseDatos + direcciones.TamanioPagina - 2, "cuervos"},
		{"pila", direcciones.PilaUsuario - 16, "pila"},
	}
	for _, tc := range casos {
		t.Run(tc.nombre, func(t *testing.T) {
			_, err := c.EnviarYVerificar(utils.MensajeEscribir, "default", map[string]interface{}{
				"pid": 1, "direccion": tc.direccion, "valor": tc.valor,
			})
			if err != nil {
				t.Fatal(err)
			}
			if got := string(leer(t, c, 1, tc.direccion, len(tc.valor))); got != tc.valor {
				t.Errorf("leído %q, want %q", got, tc.valor)
			}
		})
	}

	// el texto arranca en ceros
	for _, b := range leer(t, c, 1, baseTexto, 8) {
		if b != 0 {
			t.Fatalf("el texto anónimo debería estar en ceros")
		}
	}
}

func TestEscribirDatosBinarios(t *testing.T) {
	c := prepararMemoria(t, 32)
	crearProceso(t, c, 1)

	binarios := []byte{0x00, 0xff, 0x80, 0x7f}
	_, err := c.EnviarYVerificar(utils.MensajeEscribir, "default", map[string]interface{}{
		"pid": 1, "direccion": baseDatos, "datos": base64.StdEncoding.EncodeToString(binarios),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := leer(t, c, 1, baseDatos, len(binarios)); string(got) != string(binarios) {
		t.Errorf("leído %v, want %v", got, binarios)
	}
}

func TestEscrituraEnTextoTerminaAlProceso(t *testing.T) {
	c := prepararMemoria(t, 32)
	crearProceso(t, c, 1)
	crearProceso(t, c, 2)

	respuesta, err := c.EnviarYVerificar(utils.MensajeEscribir, "default", map[string]interface{}{
		"pid": 1, "direccion": baseTexto, "valor": "x",
	})
	if err == nil {
		t.Fatalf("escribir el texto debería fallar")
	}
	if respuesta["terminado"] != true || respuesta["pid"] != float64(1) {
		t.Errorf("respuesta = %v, se esperaba el proceso 1 terminado", respuesta)
	}

	// el otro proceso sigue vivo
	if got := string(leer(t, c, 2, baseDatos, 1)); got != "\x00" {
		t.Errorf("proceso 2 leyó %q", got)
	}
	if sistema.Estado().Procesos != 1 {
		t.Errorf("procesos = %d, want 1", sistema.Estado().Procesos)
	}
}

func TestFalloExplicito(t *testing.T) {
	c := prepararMemoria(t, 32)
	crearProceso(t, c, 3)

	casos := []struct {
		nombre    string
		tipo      string
		direccion uint32
		ok        bool
	}{
		{"lectura válida", "lectura", baseTexto, true},
		{"escritura válida", "escritura", baseDatos, true},
		{"tipo desconocido", "ejecucion", baseDatos, false},
		{"pila implícita", "lectura", 0x1f000000, true},
		{"debajo del texto", "lectura", 0x1000, false},
	}
	for _, tc := range casos {
		t.Run(tc.nombre, func(t *testing.T) {
			_, err := c.EnviarYVerificar(utils.MensajeFalloPagina, "default", map[string]interface{}{
				"pid": 3, "tipo": tc.tipo, "direccion": tc.direccion,
			})
			if (err == nil) != tc.ok {
				t.Errorf("err = %v, se esperaba ok=%v", err, tc.ok)
			}
		})
	}
}

func TestEstadisticasConsistentes(t *testing.T) {
	c := prepararMemoria(t, 32)
	crearProceso(t, c, 1)
	leer(t, c, 1, baseDatos, 2*direcciones.TamanioPagina)

	respuesta, err := c.EnviarYVerificar(utils.MensajeEstadisticas, "default", nil)
	if err != nil {
		t.Fatal(err)
	}
	if inc, _ := respuesta["inconsistencias"].([]interface{}); len(inc) != 0 {
		t.Errorf("inconsistencias: %v", inc)
	}
	stats, ok := respuesta["estadisticas"].(map[string]interface{})
	if !ok {
		t.Fatalf("respuesta sin estadísticas: %v", respuesta)
	}
	if stats["TLB Faults"] != float64(2) {
		t.Errorf("TLB Faults = %v, want 2", stats["TLB Faults"])
	}
	if stats["Page Faults (Zeroed)"] != float64(2) {
		t.Errorf("Page Faults (Zeroed) = %v, want 2", stats["Page Faults (Zeroed)"])
	}
}

func TestMemoryDump(t *testing.T) {
	c := prepararMemoria(t, 32)
	crearProceso(t, c, 4)
	leer(t, c, 4, baseTexto, 1)
	leer(t, c, 4, baseDatos, 1)

	respuesta, err := c.EnviarYVerificar(utils.MensajeMemoryDump, "default", map[string]interface{}{"pid": 4})
	if err != nil {
		t.Fatal(err)
	}
	ruta, _ := respuesta["archivo"].(string)
	info, err := os.Stat(ruta)
	if err != nil {
		t.Fatalf("no se creó el dump: %v", err)
	}
	if info.Size() != 2*direcciones.TamanioPagina {
		t.Errorf("tamaño del dump = %d, want %d", info.Size(), 2*direcciones.TamanioPagina)
	}

	if _, err := c.EnviarYVerificar(utils.MensajeMemoryDump, "default", map[string]interface{}{"pid": 99}); err == nil {
		t.Errorf("el dump de un proceso inexistente debería fallar")
	}
}

func TestPaginasKernelPorMensaje(t *testing.T) {
	c := prepararMemoria(t, 32)

	respuesta, err := c.EnviarYVerificar(utils.MensajeAsignarKernel, "default", map[string]interface{}{"paginas": 2})
	if err != nil {
		t.Fatal(err)
	}
	direccion, _ := respuesta["direccion"].(float64)
	if uint32(direccion) < direcciones.KSeg0 {
		t.Fatalf("dirección de kernel %#x fuera de kseg0", uint32(direccion))
	}
	libres := sistema.Estado().MarcosLibre

	if _, err := c.EnviarYVerificar(utils.MensajeLiberarKernel, "default", map[string]interface{}{"direccion": uint32(direccion)}); err != nil {
		t.Fatal(err)
	}
	if got := sistema.Estado().MarcosLibre; got != libres+2 {
		t.Errorf("marcos libres = %d, want %d", got, libres+2)
	}

	if _, err := c.EnviarYVerificar(utils.MensajeLiberarKernel, "default", map[string]interface{}{"direccion": 0x1000}); err == nil {
		t.Errorf("liberar una dirección de usuario debería fallar")
	}
}

func TestFinalizarProceso(t *testing.T) {
	c := prepararMemoria(t, 32)
	antes := sistema.Estado()
	crearProceso(t, c, 5)
	leer(t, c, 5, baseDatos, 2*direcciones.TamanioPagina)

	if _, err := c.EnviarYVerificar(utils.MensajeFinalizarProceso, "default", map[string]interface{}{"pid": 5, "dump": true}); err != nil {
		t.Fatal(err)
	}
	if volcados, _ := os.ReadDir(config.DumpPath); len(volcados) != 1 {
		t.Errorf("se esperaba un dump al finalizar, hay %d archivos", len(volcados))
	}
	despues := sistema.Estado()
	if despues.MarcosLibre != antes.MarcosLibre || despues.Procesos != 0 {
		t.Errorf("estado después de finalizar = %+v, antes %+v", despues, antes)
	}

	if _, err := c.EnviarYVerificar(utils.MensajeFinalizarProceso, "default", map[string]interface{}{"pid": 5}); err == nil {
		t.Errorf("finalizar dos veces debería fallar")
	}
}

func TestInicializarProcesoErrores(t *testing.T) {
	c := prepararMemoria(t, 32)

	casos := []struct {
		nombre string
		datos  map[string]interface{}
	}{
		{"sin pid", map[string]interface{}{"archivo": "prog"}},
		{"sin archivo ni regiones", map[string]interface{}{"pid": 1}},
		{"ejecutable inexistente", map[string]interface{}{"pid": 1, "archivo": "no-existe"}},
		{"región inválida", map[string]interface{}{"pid": 1, "regiones": []map[string]interface{}{{"vaddr": 0}}}},
		{"región sobre la pila", map[string]interface{}{"pid": 1, "regiones": []map[string]interface{}{
			{"vaddr": direcciones.PilaUsuario - direcciones.TamanioPagina, "tamanio": 2 * direcciones.TamanioPagina},
		}}},
		{"tres regiones", map[string]interface{}{"pid": 1, "regiones": []map[string]interface{}{
			{"vaddr": baseTexto, "tamanio": direcciones.TamanioPagina},
			{"vaddr": baseDatos, "tamanio": direcciones.TamanioPagina},
			{"vaddr": 0x20000000, "tamanio": direcciones.TamanioPagina},
		}}},
	}
	for _, tc := range casos {
		t.Run(tc.nombre, func(t *testing.T) {
			if _, err := c.EnviarYVerificar(utils.MensajeInicializarProceso, "default", tc.datos); err == nil {
				t.Errorf("se esperaba error")
			}
		})
	}

	if sistema.Estado().Procesos != 0 {
		t.Errorf("los pedidos fallidos no deberían dejar procesos")
	}
}

func TestLecturasConcurrentesDeDosProcesos(t *testing.T) {
	c := prepararMemoria(t, 32)
	valores := map[int]string{1: "AAAA", 2: "BBBB"}
	for pid, valor := range valores {
		crearProceso(t, c, pid)
		if _, err := c.EnviarYVerificar(utils.MensajeEscribir, "default", map[string]interface{}{
			"pid": pid, "direccion": baseDatos, "valor": valor,
		}); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		i := i
		pid := 1 + i%2
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%3 == 0 {
				// un ACTIVAR suelto del otro proceso en el medio
				c.EnviarYVerificar(utils.MensajeActivarProceso, "default", map[string]interface{}{"pid": 3 - pid})
			}
			respuesta, err := c.EnviarYVerificar(utils.MensajeLeer, "default", map[string]interface{}{
				"pid": pid, "direccion": baseDatos, "tamanio": 4,
			})
			if err != nil {
				errs <- err
				return
			}
			codificados, _ := respuesta["datos"].(string)
			datos, _ := base64.StdEncoding.DecodeString(codificados)
			if string(datos) != valores[pid] {
				errs <- fmt.Errorf("pid %d leyó %q", pid, datos)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestLecturaDeTamanioEnorme(t *testing.T) {
	c := prepararMemoria(t, 32)
	crearProceso(t, c, 1)
	libres := sistema.Estado().MarcosLibre

	for _, tamanio := range []int64{1 << 40, direcciones.PilaUsuario} {
		if _, err := c.EnviarYVerificar(utils.MensajeLeer, "default", map[string]interface{}{
			"pid": 1, "direccion": baseDatos, "tamanio": tamanio,
		}); err == nil {
			t.Errorf("leer %d bytes debería fallar", tamanio)
		}
	}
	if sistema.Estado().MarcosLibre != libres {
		t.Errorf("una lectura rechazada no debería cargar páginas")
	}
}
