// simrun 执行模拟与自适应风控的命令行入口。
//
// 用法：
//
//	simrun profiles
//	simrun sweep --profile conservative --orders 10000 --watch
//	simrun backtest data/candidates.csv --all-profiles
//	simrun notch replay data/daily_pnl.csv
//	simrun audit
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
