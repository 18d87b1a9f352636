package main

import (
	"fmt"

	"github.com/mattn/go-tty"
	"github.com/pkg/errors"
)

// pasoAPaso frena la traza antes de cada instrucción hasta que se aprieta una tecla
type pasoAPaso struct {
	terminal *tty.TTY
}

func abrirPasoAPaso() (*pasoAPaso, error) {
	t, err := tty.Open()
	if err != nil {
		return nil, errors.Wrap(err, "abriendo la terminal para el modo paso a paso")
	}
	return &pasoAPaso{terminal: t}, nil
}

// Esperar muestra la próxima instrucción. 'q' corta la traza, cualquier otra tecla sigue.
func (p *pasoAPaso) Esperar(inst Instruccion) (bool, error) {
	fmt.Fprintf(p.terminal.Output(), "[%d] %s  (cualquier tecla sigue, q corta) ", inst.Linea, inst)
	r, err := p.terminal.ReadRune()
	fmt.Fprintln(p.terminal.Output())
	if err != nil {
		return false, err
	}
	return r != 'q' && r != 'Q', nil
}

func (p *pasoAPaso) Close() error {
	return p.terminal.Close()
}
