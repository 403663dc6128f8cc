// Command shop 在链上商城购买商品
package main

func main() {
	Execute()
}
