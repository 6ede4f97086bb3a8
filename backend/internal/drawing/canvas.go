package drawing

import (
	"fmt"

	"whiteboard/backend/internal/geometry"
)

type CommandKind string

const (
	CommandDot   CommandKind = "dot"
	CommandLine  CommandKind = "line"
	CommandClear CommandKind = "clear"
)

// Command 一条已渲染的绘制命令
type Command struct {
	Kind CommandKind
	From geometry.RelativePoint
	// To 仅对 line 有效
	To geometry.RelativePoint
}

func (c Command) String() string {
	switch c.Kind {
	case CommandDot:
		return fmt.Sprintf("dot(%g,%g)", c.From.X, c.From.Y)
	case CommandLine:
		return fmt.Sprintf("line(%g,%g,%g,%g)", c.From.X, c.From.Y, c.To.X, c.To.Y)
	}
	return string(c.Kind)
}

// Canvas 绘图区域适配器：记录画过的点和线，以替代真实的矢量渲染后端。
// Observer 非空时每条命令都会回调一次（用来打日志或转发给真正的渲染器）。
type Canvas struct {
	bounds   geometry.Bounds
	commands []Command
	Observer func(Command)
}

func NewCanvas(bounds geometry.Bounds) *Canvas {
	return &Canvas{bounds: bounds}
}

func (c *Canvas) Bounds() geometry.Bounds { return c.bounds }

func (c *Canvas) DrawDot(p geometry.RelativePoint) {
	c.record(Command{Kind: CommandDot, From: p})
}

func (c *Canvas) DrawLine(from, to geometry.RelativePoint) {
	c.record(Command{Kind: CommandLine, From: from, To: to})
}

// Clear 清空已绘制内容
func (c *Canvas) Clear() {
	c.commands = nil
	if c.Observer != nil {
		c.Observer(Command{Kind: CommandClear})
	}
}

// Commands 返回当前画布上所有命令的副本
func (c *Canvas) Commands() []Command {
	out := make([]Command, len(c.commands))
	copy(out, c.commands)
	return out
}

func (c *Canvas) record(cmd Command) {
	c.commands = append(c.commands, cmd)
	if c.Observer != nil {
		c.Observer(cmd)
	}
}
