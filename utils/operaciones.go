package utils

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// AplicarRetardo aplica un retardo simulado y lo registra
func AplicarRetardo(operacion string, duracionMs int) {
	if duracionMs <= 0 {
		return
	}
	slog.Debug("Aplicando retardo", "operación", operacion, "duración_ms", duracionMs)
	time.Sleep(time.Duration(duracionMs) * time.Millisecond)
	slog.Debug("Retardo completado", "operación", operacion)
}

// ObtenerEntero extrae un entero de los datos de un mensaje. JSON decodifica
// todos los números como float64.
func ObtenerEntero(msg *Mensaje, clave string) (int, error) {
	datos, ok := msg.Datos.(map[string]interface{})
	if !ok {
		return 0, errors.New("formato de datos incorrecto")
	}
	valor, ok := datos[clave].(float64)
	if !ok {
		return 0, errors.Errorf("%s no proporcionado o formato incorrecto", clave)
	}
	return int(valor), nil
}

// ObtenerTexto extrae un string de los datos de un mensaje
func ObtenerTexto(msg *Mensaje, clave string) (string, error) {
	datos, ok := msg.Datos.(map[string]interface{})
	if !ok {
		return "", errors.New("formato de datos incorrecto")
	}
	valor, ok := datos[clave].(string)
	if !ok {
		return "", errors.Errorf("%s no proporcionado o formato incorrecto", clave)
	}
	return valor, nil
}

// ObtenerBool extrae un booleano opcional; si falta devuelve valorPorDefecto
func ObtenerBool(msg *Mensaje, clave string, valorPorDefecto bool) bool {
	if datos, ok := msg.Datos.(map[string]interface{}); ok {
		if valor, ok := datos[clave].(bool); ok {
			return valor
		}
	}
	return valorPorDefecto
}
