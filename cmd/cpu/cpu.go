package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// CPU ejecuta una traza contra el módulo Memoria
type CPU struct {
	memoria *utils.HTTPClient
	retardo int

	// esperar se llama antes de cada instrucción en modo paso a paso;
	// devuelve false para cortar la traza
	esperar func(Instruccion) (bool, error)

	kernel     []uint32 // direcciones de los KMALLOC aún no liberados
	terminados map[int]bool
}

// Resultado resume una corrida de la traza
type Resultado struct {
	Ejecutadas int
	Errores    int
	Terminados []int
	Cortada    bool
}

func NuevaCPU(memoria *utils.HTTPClient, retardo int) *CPU {
	return &CPU{
		memoria:    memoria,
		retardo:    retardo,
		terminados: make(map[int]bool),
	}
}

// ejecutarTraza corre las instrucciones en orden. Un error en una instrucción
// se loguea y la traza sigue; solo un error del modo paso a paso la corta.
func (c *CPU) ejecutarTraza(instrucciones []Instruccion) (Resultado, error) {
	var res Resultado

	for _, inst := range instrucciones {
		if c.esperar != nil {
			seguir, err := c.esperar(inst)
			if err != nil {
				return res, errors.Wrap(err, "esperando la tecla")
			}
			if !seguir {
				utils.InfoLog.Info("Traza cortada por el usuario", "linea", inst.Linea)
				res.Cortada = true
				break
			}
		}

		utils.InfoLog.Info(fmt.Sprintf("## Ejecutando: %s", inst))
		err := c.decodeAndExecute(inst)
		res.Ejecutadas++

		var terminado *errProcesoTerminado
		switch {
		case err == nil:
		case errors.As(err, &terminado):
			utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Finalizado por la memoria - Motivo: %s", terminado.pid, terminado.motivo))
			c.terminados[terminado.pid] = true
			res.Terminados = append(res.Terminados, terminado.pid)
		default:
			utils.ErrorLog.Error("Error ejecutando instrucción", "linea", inst.Linea, "instruccion", inst.String(), "error", err)
			res.Errores++
		}

		utils.AplicarRetardo("instruccion", c.retardo)
	}

	return res, nil
}

// decodeAndExecute interpreta la instrucción y hace el pedido a memoria
func (c *CPU) decodeAndExecute(inst Instruccion) error {
	p := inst.Parametros

	switch inst.Operacion {
	case "STATS":
		return c.imprimirEstadisticas()
	case "ESTADO":
		return c.imprimirEstado()
	case "KMALLOC":
		paginas, err := parsearNumero(p[0])
		if err != nil {
			return err
		}
		return c.asignarKernel(int(paginas))
	case "KFREE":
		if len(p) == 0 {
			return c.liberarUltimoKernel()
		}
		direccion, err := parsearNumero(p[0])
		if err != nil {
			return err
		}
		return c.liberarKernel(direccion)
	}

	// el resto de las operaciones son de un proceso
	pid, err := parsearNumero(p[0])
	if err != nil {
		return err
	}
	pidInt := int(pid)
	if c.terminados[pidInt] && inst.Operacion != "INIT" && inst.Operacion != "INIT_ANON" {
		utils.InfoLog.Debug("Instrucción de un proceso terminado, se saltea", "pid", pidInt, "instruccion", inst.String())
		return nil
	}

	switch inst.Operacion {
	case "INIT":
		delete(c.terminados, pidInt)
		return c.inicializarProceso(pidInt, map[string]interface{}{"archivo": p[1]})

	case "INIT_ANON":
		numeros, err := parsearNumeros(p, 1)
		if err != nil {
			return err
		}
		regiones := make([]map[string]interface{}, 0, len(numeros)/2)
		for i := 0; i+1 < len(numeros); i += 2 {
			regiones = append(regiones, map[string]interface{}{"vaddr": numeros[i], "tamanio": numeros[i+1]})
		}
		delete(c.terminados, pidInt)
		return c.inicializarProceso(pidInt, map[string]interface{}{"regiones": regiones})

	case "ACTIVAR":
		return c.activarProceso(pidInt)

	case "READ":
		numeros, err := parsearNumeros(p, 1)
		if err != nil {
			return err
		}
		_, err = c.leerDeMemoria(pidInt, numeros[0], int(numeros[1]))
		return err

	case "WRITE":
		direccion, err := parsearNumero(p[1])
		if err != nil {
			return err
		}
		return c.escribirEnMemoria(pidInt, direccion, strings.Join(p[2:], " "))

	case "FALLO":
		direccion, err := parsearNumero(p[2])
		if err != nil {
			return err
		}
		return c.falloPagina(pidInt, p[1], direccion)

	case "DUMP":
		return c.memoryDump(pidInt)

	case "EXIT":
		return c.finalizarProceso(pidInt)
	}

	return errors.Wrapf(ErrInstruccionInvalida, "operación %s", inst.Operacion)
}

func conectarConReintentos(c *utils.HTTPClient, nombreModulo string, datosHandshake map[string]interface{}) map[string]interface{} {
	utils.InfoLog.Info("Iniciando conexión", "destino", nombreModulo)

	for i := 1; ; i++ {
		err := c.VerificarConexion()
		var respuesta map[string]interface{}
		if err == nil {
			respuesta, err = c.EnviarYVerificar(utils.MensajeHandshake, "handshake", datosHandshake)
		}
		if err == nil {
			utils.InfoLog.Info("Conexión establecida", "destino", nombreModulo)
			return respuesta
		}

		utils.InfoLog.Warn("Reintentando conexión",
			"destino", nombreModulo,
			"intento", i,
			"próximo_en", "2s")
		time.Sleep(2 * time.Second)
	}
}
