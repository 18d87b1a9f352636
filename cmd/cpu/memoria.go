package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// bytes leídos que se muestran en el log
const maxBytesLog = 32

// errProcesoTerminado es la respuesta de memoria cuando un fallo mató al proceso
type errProcesoTerminado struct {
	pid    int
	motivo string
}

func (e *errProcesoTerminado) Error() string {
	return fmt.Sprintf("proceso %d terminado: %s", e.pid, e.motivo)
}

// enviar manda el pedido y separa la terminación del proceso de los demás errores
func (c *CPU) enviar(tipo int, operacion string, datos map[string]interface{}) (map[string]interface{}, error) {
	respuesta, err := c.memoria.EnviarYVerificar(tipo, operacion, datos)
	if err == nil {
		return respuesta, nil
	}
	if terminado, _ := respuesta["terminado"].(bool); terminado {
		pid, _ := respuesta["pid"].(float64)
		return nil, &errProcesoTerminado{pid: int(pid), motivo: err.Error()}
	}
	return nil, errors.Wrapf(err, "%s", operacion)
}

func (c *CPU) inicializarProceso(pid int, datos map[string]interface{}) error {
	datos["pid"] = pid
	respuesta, err := c.enviar(utils.MensajeInicializarProceso, "INIT_PROC", datos)
	if err != nil {
		return err
	}

	pila, _ := respuesta["pila"].(float64)
	utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Proceso creado - Pila: %#x", pid, uint32(pila)))
	if entrada, ok := respuesta["entrada"].(float64); ok {
		utils.InfoLog.Info("Punto de entrada del ejecutable", "pid", pid, "entrada", fmt.Sprintf("%#x", uint32(entrada)))
	}
	return nil
}

func (c *CPU) activarProceso(pid int) error {
	_, err := c.enviar(utils.MensajeActivarProceso, "ACTIVAR", map[string]interface{}{"pid": pid})
	return err
}

func (c *CPU) finalizarProceso(pid int) error {
	_, err := c.enviar(utils.MensajeFinalizarProceso, "EXIT", map[string]interface{}{"pid": pid})
	if err == nil {
		c.terminados[pid] = true
	}
	return err
}

// Escribir en memoria
func (c *CPU) escribirEnMemoria(pid int, direccion uint32, valor string) error {
	params := map[string]interface{}{
		"pid":       pid,
		"direccion": direccion,
		"valor":     valor,
	}
	if _, err := c.enviar(utils.MensajeEscribir, "ESCRIBIR", params); err != nil {
		return err
	}

	utils.InfoLog.Info(fmt.Sprintf("PID: %d - Acción: ESCRIBIR - Dirección Virtual: %#x - Valor: %s", pid, direccion, valor))
	return nil
}

// Leer de memoria
func (c *CPU) leerDeMemoria(pid int, direccion uint32, tamanio int) ([]byte, error) {
	params := map[string]interface{}{
		"pid":       pid,
		"direccion": direccion,
		"tamanio":   tamanio,
	}
	respuesta, err := c.enviar(utils.MensajeLeer, "LEER", params)
	if err != nil {
		return nil, err
	}

	codificados, ok := respuesta["datos"].(string)
	if !ok {
		return nil, errors.Errorf("formato de datos incorrecto: %v", respuesta)
	}
	datos, err := base64.StdEncoding.DecodeString(codificados)
	if err != nil {
		return nil, errors.Wrap(err, "decodificando los datos leídos")
	}

	valor := hex.EncodeToString(datos[:min(len(datos), maxBytesLog)])
	if len(datos) > maxBytesLog {
		valor += "..."
	}
	utils.InfoLog.Info(fmt.Sprintf("PID: %d - Acción: LEER - Dirección Virtual: %#x - Valor: %s", pid, direccion, valor))
	return datos, nil
}

func (c *CPU) falloPagina(pid int, tipo string, direccion uint32) error {
	params := map[string]interface{}{
		"pid":       pid,
		"tipo":      tipo,
		"direccion": direccion,
	}
	_, err := c.enviar(utils.MensajeFalloPagina, "FALLO", params)
	return err
}

func (c *CPU) memoryDump(pid int) error {
	respuesta, err := c.enviar(utils.MensajeMemoryDump, "DUMP_MEMORY", map[string]interface{}{"pid": pid})
	if err != nil {
		return err
	}
	utils.InfoLog.Info("Memory dump generado", "pid", pid, "archivo", respuesta["archivo"], "paginas", respuesta["paginas"])
	return nil
}

func (c *CPU) asignarKernel(paginas int) error {
	respuesta, err := c.enviar(utils.MensajeAsignarKernel, "KMALLOC", map[string]interface{}{"paginas": paginas})
	if err != nil {
		return err
	}
	direccion, ok := respuesta["direccion"].(float64)
	if !ok {
		return errors.Errorf("respuesta sin dirección: %v", respuesta)
	}

	c.kernel = append(c.kernel, uint32(direccion))
	utils.InfoLog.Info("Páginas de kernel asignadas", "paginas", paginas, "direccion", fmt.Sprintf("%#x", uint32(direccion)))
	return nil
}

func (c *CPU) liberarUltimoKernel() error {
	if len(c.kernel) == 0 {
		return errors.New("no hay páginas de kernel para liberar")
	}
	return c.liberarKernel(c.kernel[len(c.kernel)-1])
}

func (c *CPU) liberarKernel(direccion uint32) error {
	if _, err := c.enviar(utils.MensajeLiberarKernel, "KFREE", map[string]interface{}{"direccion": direccion}); err != nil {
		return err
	}
	for i, d := range c.kernel {
		if d == direccion {
			c.kernel = append(c.kernel[:i], c.kernel[i+1:]...)
			break
		}
	}
	return nil
}

func (c *CPU) imprimirEstadisticas() error {
	respuesta, err := c.enviar(utils.MensajeEstadisticas, "STATS", nil)
	if err != nil {
		return err
	}
	stats, ok := respuesta["estadisticas"].(map[string]interface{})
	if !ok {
		return errors.Errorf("formato de estadísticas incorrecto: %v", respuesta)
	}

	nombres := make([]string, 0, len(stats))
	for nombre := range stats {
		nombres = append(nombres, nombre)
	}
	sort.Strings(nombres)

	utils.InfoLog.Info("-------------------ESTADÍSTICAS-------------------")
	for _, nombre := range nombres {
		utils.InfoLog.Info(fmt.Sprintf("%s: %v", nombre, stats[nombre]))
	}
	if inconsistencias, _ := respuesta["inconsistencias"].([]interface{}); len(inconsistencias) > 0 {
		utils.ErrorLog.Warn("La memoria reporta contadores inconsistentes", "inconsistencias", inconsistencias)
	}
	return nil
}

func (c *CPU) imprimirEstado() error {
	respuesta, err := c.enviar(utils.MensajeEstado, "ESTADO", nil)
	if err != nil {
		return err
	}
	utils.InfoLog.Info("Estado de la memoria", "estado", respuesta["estado"])
	return nil
}
