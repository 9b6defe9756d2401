package upf

import (
	"path"

	"github.com/charmed-5g/upf-operator/pkg/workload"
)

func bessdEnvironment() map[string]string {
	return map[string]string{
		"CONF_FILE": path.Join(bessdConfigDir, configFileName),
	}
}

func bessdPlan() workload.Plan {
	return workload.Plan{
		Summary:     "bessd layer",
		Description: "pebble config layer for bessd",
		Services: map[string]workload.Service{
			BessdContainerName: {
				Override: "replace",
				Startup:  "enabled",
				// "-m 0" disables hugepages.
				Command:     "bessd -f -grpc-url=0.0.0.0:10514 -m 0",
				Environment: bessdEnvironment(),
			},
		},
	}
}

func routectlPlan() workload.Plan {
	return workload.Plan{
		Summary:     "routectl layer",
		Description: "pebble config layer for routectl",
		Services: map[string]workload.Service{
			RoutectlContainerName: {
				Override:    "replace",
				Startup:     "enabled",
				Command:     "/opt/bess/bessctl/conf/route_control.py -i access core",
				Environment: map[string]string{"PYTHONUNBUFFERED": "1"},
			},
		},
	}
}

func webPlan() workload.Plan {
	return workload.Plan{
		Summary:     "web layer",
		Description: "pebble config layer for web",
		Services: map[string]workload.Service{
			WebContainerName: {
				Override: "replace",
				Startup:  "enabled",
				Command:  "bessctl http 0.0.0.0 8000",
			},
		},
	}
}

func pfcpAgentPlan() workload.Plan {
	return workload.Plan{
		Summary:     "pfcp agent layer",
		Description: "pebble config layer for pfcp agent",
		Services: map[string]workload.Service{
			PFCPAgentContainerName: {
				Override: "replace",
				Startup:  "enabled",
				Command:  "pfcpiface -config " + path.Join(pfcpAgentConfigDir, configFileName),
			},
		},
	}
}
