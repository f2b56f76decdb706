package interp

import (
	"fmt"
	"strings"

	binmodel "github.com/xyproto/binscope/internal/binary"
)

var noStateChange = map[string]bool{
	"nop": true, "int3": true, "endbr64": true, "endbr32": true, "pause": true,
}

var endOfFlowMnemonics = map[string]bool{
	"ret": true, "retn": true, "retq": true, "retf": true,
}

// dispatch executes inst's semantics (spec.md §4.J "Instruction semantics").
// rip has already been advanced to the fallthrough address by Step; control
// transfer instructions overwrite it here.
func (ip *Interpreter) dispatch(inst binmodel.Instruction) error {
	mnemonic := strings.ToLower(strings.TrimSpace(inst.Mnemonic))
	ops := splitOperands(inst.Operands)

	if noStateChange[mnemonic] {
		return nil
	}

	switch {
	case mnemonic == "mov" || mnemonic == "movq" || mnemonic == "movl":
		return ip.execMov(ops)
	case mnemonic == "movzx":
		return ip.execMovzx(ops)
	case mnemonic == "movsx" || mnemonic == "movsxd":
		return ip.execMovsx(ops)
	case mnemonic == "push":
		return ip.execPush(ops)
	case mnemonic == "pop":
		return ip.execPop(ops)
	case mnemonic == "add":
		return ip.execAddSub(ops, false)
	case mnemonic == "sub":
		return ip.execAddSub(ops, true)
	case mnemonic == "cmp":
		return ip.execCmp(ops)
	case mnemonic == "xor":
		return ip.execLogic(ops, logicXor)
	case mnemonic == "and":
		return ip.execLogic(ops, logicAnd)
	case mnemonic == "or":
		return ip.execLogic(ops, logicOr)
	case mnemonic == "test":
		return ip.execTest(ops)
	case mnemonic == "not":
		return ip.execNot(ops)
	case mnemonic == "neg":
		return ip.execNeg(ops)
	case mnemonic == "inc":
		return ip.execIncDec(ops, false)
	case mnemonic == "dec":
		return ip.execIncDec(ops, true)
	case mnemonic == "lea":
		return ip.execLea(ops)
	case mnemonic == "shl" || mnemonic == "sal":
		return ip.execShift(ops, shiftLeft)
	case mnemonic == "shr":
		return ip.execShift(ops, shiftRight)
	case mnemonic == "sar":
		return ip.execShift(ops, shiftArith)
	case mnemonic == "call":
		return ip.execCall(ops)
	case endOfFlowMnemonics[mnemonic]:
		return ip.execRet()
	case mnemonic == "jmp":
		return ip.execJmp(ops)
	case strings.HasPrefix(mnemonic, "j"):
		return ip.execJcc(mnemonic, ops)
	default:
		return fmt.Errorf("unsupported mnemonic %q", mnemonic)
	}
}

// operandWidth picks the effective operand width: an explicit size prefix
// wins, then a register's own alias width, else the interpreter's default
// address-bus width.
func (ip *Interpreter) operandWidth(op Operand) uint {
	if op.Width != 0 {
		return op.Width
	}
	if op.Kind == KindReg {
		_, _, w, _ := Lookup(op.Reg)
		return w
	}
	return uint(ip.bits)
}

func (ip *Interpreter) readOperand(op Operand) (uint64, uint, error) {
	width := ip.operandWidth(op)
	switch op.Kind {
	case KindReg:
		v, ok := ip.Regs.Read(op.Reg)
		if !ok {
			return 0, 0, fmt.Errorf("unknown register %q", op.Reg)
		}
		return v, width, nil
	case KindImm:
		return op.Imm & widthMask(width), width, nil
	case KindMem:
		addr, err := EffectiveAddress(op.Expr, ip.Regs)
		if err != nil {
			return 0, 0, err
		}
		return ip.Mem.Read(addr, width/8), width, nil
	default:
		return 0, 0, fmt.Errorf("unrecognized operand %q", op.Expr)
	}
}

func (ip *Interpreter) writeOperand(op Operand, value uint64) error {
	width := ip.operandWidth(op)
	switch op.Kind {
	case KindReg:
		ip.Regs.Write(op.Reg, value)
		return nil
	case KindMem:
		addr, err := EffectiveAddress(op.Expr, ip.Regs)
		if err != nil {
			return err
		}
		ip.Mem.Write(addr, value, width/8)
		return nil
	default:
		return fmt.Errorf("operand %q is not writable", op.Expr)
	}
}

func requireOperands(ops []string, n int) error {
	if len(ops) < n {
		return fmt.Errorf("expected %d operand(s), got %d", n, len(ops))
	}
	return nil
}

func (ip *Interpreter) execMov(ops []string) error {
	if err := requireOperands(ops, 2); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	src := ParseOperand(ops[1])
	v, _, err := ip.readOperand(src)
	if err != nil {
		return err
	}
	return ip.writeOperand(dst, v)
}

func (ip *Interpreter) execMovzx(ops []string) error {
	if err := requireOperands(ops, 2); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	src := ParseOperand(ops[1])
	v, srcWidth, err := ip.readOperand(src)
	if err != nil {
		return err
	}
	return ip.writeOperand(dst, v&widthMask(srcWidth))
}

func (ip *Interpreter) execMovsx(ops []string) error {
	if err := requireOperands(ops, 2); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	src := ParseOperand(ops[1])
	v, srcWidth, err := ip.readOperand(src)
	if err != nil {
		return err
	}
	dstWidth := ip.operandWidth(dst)
	v = signExtend(v, srcWidth, dstWidth)
	return ip.writeOperand(dst, v)
}

func signExtend(v uint64, fromWidth, toWidth uint) uint64 {
	signBit := uint64(1) << (fromWidth - 1)
	v &= widthMask(fromWidth)
	if v&signBit != 0 {
		v |= ^widthMask(fromWidth) & widthMask(toWidth)
	}
	return v & widthMask(toWidth)
}

func (ip *Interpreter) execPush(ops []string) error {
	if err := requireOperands(ops, 1); err != nil {
		return err
	}
	src := ParseOperand(ops[0])
	v, _, err := ip.readOperand(src)
	if err != nil {
		return err
	}
	rsp, _ := ip.Regs.Read("rsp")
	rsp -= ip.word()
	ip.Regs.Write("rsp", rsp)
	ip.Mem.Write(rsp, v, uint(ip.word()))
	return nil
}

func (ip *Interpreter) execPop(ops []string) error {
	if err := requireOperands(ops, 1); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	rsp, _ := ip.Regs.Read("rsp")
	v := ip.Mem.Read(rsp, uint(ip.word()))
	ip.Regs.Write("rsp", rsp+ip.word())
	return ip.writeOperand(dst, v)
}

func (ip *Interpreter) execAddSub(ops []string, isSub bool) error {
	if err := requireOperands(ops, 2); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	src := ParseOperand(ops[1])
	a, width, err := ip.readOperand(dst)
	if err != nil {
		return err
	}
	b, _, err := ip.readOperand(src)
	if err != nil {
		return err
	}

	var raw int64
	var result uint64
	if isSub {
		raw = int64(a) - int64(b)
		result = (a - b) & widthMask(width)
	} else {
		raw = int64(a) + int64(b)
		result = (a + b) & widthMask(width)
	}
	ip.Flags.updateArith(raw, result, width, a, b, isSub)
	return ip.writeOperand(dst, result)
}

func (ip *Interpreter) execCmp(ops []string) error {
	if err := requireOperands(ops, 2); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	src := ParseOperand(ops[1])
	a, width, err := ip.readOperand(dst)
	if err != nil {
		return err
	}
	b, _, err := ip.readOperand(src)
	if err != nil {
		return err
	}
	raw := int64(a) - int64(b)
	result := (a - b) & widthMask(width)
	ip.Flags.updateArith(raw, result, width, a, b, true)
	return nil
}

type logicOp int

const (
	logicXor logicOp = iota
	logicAnd
	logicOr
)

func (ip *Interpreter) execLogic(ops []string, op logicOp) error {
	if err := requireOperands(ops, 2); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	src := ParseOperand(ops[1])
	a, width, err := ip.readOperand(dst)
	if err != nil {
		return err
	}
	b, _, err := ip.readOperand(src)
	if err != nil {
		return err
	}
	var result uint64
	switch op {
	case logicXor:
		result = a ^ b
	case logicAnd:
		result = a & b
	case logicOr:
		result = a | b
	}
	result &= widthMask(width)
	ip.Flags.updateLogic(result, width)
	return ip.writeOperand(dst, result)
}

func (ip *Interpreter) execTest(ops []string) error {
	if err := requireOperands(ops, 2); err != nil {
		return err
	}
	a, width, err := ip.readOperand(ParseOperand(ops[0]))
	if err != nil {
		return err
	}
	b, _, err := ip.readOperand(ParseOperand(ops[1]))
	if err != nil {
		return err
	}
	ip.Flags.updateLogic((a&b)&widthMask(width), width)
	return nil
}

func (ip *Interpreter) execNot(ops []string) error {
	if err := requireOperands(ops, 1); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	v, width, err := ip.readOperand(dst)
	if err != nil {
		return err
	}
	return ip.writeOperand(dst, (^v)&widthMask(width))
}

func (ip *Interpreter) execNeg(ops []string) error {
	if err := requireOperands(ops, 1); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	v, width, err := ip.readOperand(dst)
	if err != nil {
		return err
	}
	result := (^v + 1) & widthMask(width)
	ip.Flags.CF = v != 0
	minSigned := uint64(1) << (width - 1)
	ip.Flags.OF = v == minSigned
	ip.Flags.ZF = result == 0
	ip.Flags.SF = (result>>(width-1))&1 == 1
	ip.Flags.PF = parity8(result)
	return ip.writeOperand(dst, result)
}

func (ip *Interpreter) execIncDec(ops []string, isDec bool) error {
	if err := requireOperands(ops, 1); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	v, width, err := ip.readOperand(dst)
	if err != nil {
		return err
	}
	savedCF := ip.Flags.CF
	var raw int64
	var result uint64
	if isDec {
		raw = int64(v) - 1
		result = (v - 1) & widthMask(width)
		ip.Flags.updateArith(raw, result, width, v, 1, true)
	} else {
		raw = int64(v) + 1
		result = (v + 1) & widthMask(width)
		ip.Flags.updateArith(raw, result, width, v, 1, false)
	}
	ip.Flags.CF = savedCF
	return ip.writeOperand(dst, result)
}

func (ip *Interpreter) execLea(ops []string) error {
	if err := requireOperands(ops, 2); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	src := ParseOperand(ops[1])
	if src.Kind != KindMem {
		return fmt.Errorf("lea requires a memory source operand, got %q", ops[1])
	}
	addr, err := EffectiveAddress(src.Expr, ip.Regs)
	if err != nil {
		return err
	}
	return ip.writeOperand(dst, addr)
}

type shiftDir int

const (
	shiftLeft shiftDir = iota
	shiftRight
	shiftArith
)

func (ip *Interpreter) execShift(ops []string, dir shiftDir) error {
	if err := requireOperands(ops, 2); err != nil {
		return err
	}
	dst := ParseOperand(ops[0])
	countOp := ParseOperand(ops[1])
	v, width, err := ip.readOperand(dst)
	if err != nil {
		return err
	}
	rawCount, _, err := ip.readOperand(countOp)
	if err != nil {
		return err
	}
	count := uint(rawCount&0x3f) % width
	if count == 0 {
		return ip.writeOperand(dst, v)
	}

	var result uint64
	var lastOut bool
	switch dir {
	case shiftLeft:
		lastOut = (v>>(width-count))&1 == 1
		result = (v << count) & widthMask(width)
	case shiftRight:
		lastOut = (v>>(count-1))&1 == 1
		result = v >> count
	case shiftArith:
		lastOut = (v>>(count-1))&1 == 1
		signBit := (v >> (width - 1)) & 1
		result = v >> count
		if signBit == 1 {
			result |= ^widthMask(width-count) & widthMask(width)
		}
	}
	result &= widthMask(width)
	ip.Flags.CF = lastOut
	ip.Flags.ZF = result == 0
	ip.Flags.SF = (result>>(width-1))&1 == 1
	return ip.writeOperand(dst, result)
}

func (ip *Interpreter) resolveTarget(opStr string) (uint64, error) {
	op := ParseOperand(opStr)
	switch op.Kind {
	case KindImm:
		return op.Imm, nil
	case KindReg:
		v, ok := ip.Regs.Read(op.Reg)
		if !ok {
			return 0, fmt.Errorf("unknown register %q", op.Reg)
		}
		return v, nil
	case KindMem:
		addr, err := EffectiveAddress(op.Expr, ip.Regs)
		if err != nil {
			return 0, err
		}
		return ip.Mem.Read(addr, uint(ip.word())), nil
	default:
		return parseAddr(opStr), nil
	}
}

func (ip *Interpreter) execCall(ops []string) error {
	if err := requireOperands(ops, 1); err != nil {
		return err
	}
	target, err := ip.resolveTarget(ops[0])
	if err != nil {
		return err
	}
	ripNext, _ := ip.Regs.Read("rip")
	rsp, _ := ip.Regs.Read("rsp")
	rsp -= ip.word()
	ip.Regs.Write("rsp", rsp)
	ip.Mem.Write(rsp, ripNext, uint(ip.word()))
	ip.Regs.Write("rip", target)
	return nil
}

func (ip *Interpreter) execRet() error {
	rsp, _ := ip.Regs.Read("rsp")
	retAddr := ip.Mem.Read(rsp, uint(ip.word()))
	ip.Regs.Write("rsp", rsp+ip.word())
	ip.Regs.Write("rip", retAddr)
	return nil
}

func (ip *Interpreter) execJmp(ops []string) error {
	if err := requireOperands(ops, 1); err != nil {
		return err
	}
	target, err := ip.resolveTarget(ops[0])
	if err != nil {
		return err
	}
	ip.Regs.Write("rip", target)
	return nil
}

func (ip *Interpreter) execJcc(mnemonic string, ops []string) error {
	if err := requireOperands(ops, 1); err != nil {
		return err
	}
	cc := jccToCC(mnemonic)
	if !ip.Flags.Check(cc) {
		return nil
	}
	target, err := ip.resolveTarget(ops[0])
	if err != nil {
		return err
	}
	ip.Regs.Write("rip", target)
	return nil
}
