package sundaeddb

import (
	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster string
	TableName  string
}

var DAXClusterFlag = sundaecli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var TableNameFlag = sundaecli.StringFlag("table-name", "table whose stream is consumed", &DDBOpts.TableName)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	TableNameFlag,
}
