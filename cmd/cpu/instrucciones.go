package main

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Instruccion es una línea de la traza ya separada en operación y parámetros
type Instruccion struct {
	Linea      int
	Operacion  string
	Parametros []string
}

func (i Instruccion) String() string {
	if len(i.Parametros) == 0 {
		return i.Operacion
	}
	return i.Operacion + " " + strings.Join(i.Parametros, " ")
}

var ErrInstruccionInvalida = errors.New("instrucción inválida")

// cantidad de parámetros de cada operación: mínimo y máximo (-1 = sin tope)
var aridad = map[string][2]int{
	"INIT":      {2, 2},  // INIT <pid> <ejecutable>
	"INIT_ANON": {3, 5},  // INIT_ANON <pid> <vaddr> <tamaño> [<vaddr> <tamaño>]
	"ACTIVAR":   {1, 1},  // ACTIVAR <pid>
	"READ":      {3, 3},  // READ <pid> <dirección> <tamaño>
	"WRITE":     {3, -1}, // WRITE <pid> <dirección> <valor...>
	"FALLO":     {3, 3},  // FALLO <pid> <lectura|escritura|solo_lectura> <dirección>
	"KMALLOC":   {1, 1},  // KMALLOC <páginas>
	"KFREE":     {0, 1},  // KFREE [<dirección>], sin dirección libera el último KMALLOC
	"DUMP":      {1, 1},  // DUMP <pid>
	"STATS":     {0, 0},
	"ESTADO":    {0, 0},
	"EXIT":      {1, 1}, // EXIT <pid>
}

// parsearInstruccion separa la línea y valida la cantidad de parámetros
func parsearInstruccion(linea string, numero int) (Instruccion, error) {
	partes := strings.Fields(linea)
	if len(partes) == 0 {
		return Instruccion{}, errors.Wrapf(ErrInstruccionInvalida, "línea %d vacía", numero)
	}

	inst := Instruccion{
		Linea:      numero,
		Operacion:  strings.ToUpper(partes[0]),
		Parametros: partes[1:],
	}

	rango, ok := aridad[inst.Operacion]
	if !ok {
		return Instruccion{}, errors.Wrapf(ErrInstruccionInvalida, "línea %d: operación desconocida %q", numero, partes[0])
	}
	n := len(inst.Parametros)
	if n < rango[0] || (rango[1] >= 0 && n > rango[1]) {
		return Instruccion{}, errors.Wrapf(ErrInstruccionInvalida, "línea %d: %s espera entre %d y %d parámetros, recibió %d", numero, inst.Operacion, rango[0], rango[1], n)
	}
	if inst.Operacion == "INIT_ANON" && n%2 == 0 {
		return Instruccion{}, errors.Wrapf(ErrInstruccionInvalida, "línea %d: cada región lleva dirección y tamaño", numero)
	}
	return inst, nil
}

// parsearTraza lee la traza completa. Ignora líneas vacías y comentarios con #.
func parsearTraza(r io.Reader) ([]Instruccion, error) {
	var instrucciones []Instruccion

	scanner := bufio.NewScanner(r)
	for numero := 1; scanner.Scan(); numero++ {
		linea := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(linea, '#'); i >= 0 {
			linea = strings.TrimSpace(linea[:i])
		}
		if linea == "" {
			continue
		}

		inst, err := parsearInstruccion(linea, numero)
		if err != nil {
			return nil, err
		}
		instrucciones = append(instrucciones, inst)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "leyendo la traza")
	}
	return instrucciones, nil
}

// parsearNumero acepta decimal, 0x hexa y 0o octal
func parsearNumero(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Wrapf(ErrInstruccionInvalida, "número inválido %q", s)
	}
	return uint32(n), nil
}

// parsearNumeros convierte todos los parámetros desde el índice desde
func parsearNumeros(parametros []string, desde int) ([]uint32, error) {
	numeros := make([]uint32, 0, len(parametros)-desde)
	for _, p := range parametros[desde:] {
		n, err := parsearNumero(p)
		if err != nil {
			return nil, err
		}
		numeros = append(numeros, n)
	}
	return numeros, nil
}
