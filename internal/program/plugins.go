package program

// Built-in plugins, registered in the catalogue by their init
import (
	_ "serverless/internal/plugins/create"
	_ "serverless/internal/plugins/deploy"
	_ "serverless/internal/plugins/dotenv"
	_ "serverless/internal/plugins/info"
	_ "serverless/internal/plugins/invoke"
	_ "serverless/internal/plugins/packaging"
	_ "serverless/internal/plugins/pluginlist"
	_ "serverless/internal/plugins/print"
	_ "serverless/internal/plugins/remove"
	_ "serverless/internal/providers/aws"
	_ "serverless/internal/providers/docker"
	_ "serverless/internal/providers/kubernetes"
)
